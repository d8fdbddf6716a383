package corpus

import (
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Topic is one <top> entry of a TREC topics file; only the title is used
// as query text.
type Topic struct {
	ID   string
	Text string
}

var (
	topicNumRe   = regexp.MustCompile(`<num>\s*Number:\s*(\S+)`)
	topicTitleRe = regexp.MustCompile(`(?s)<title>(.*?)<desc>`)
)

// ParseTopics reads all topics from r in file order.
func ParseTopics(r io.Reader) ([]Topic, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading topics: %w", err)
	}
	content := string(data)
	nums := topicNumRe.FindAllStringSubmatch(content, -1)
	titles := topicTitleRe.FindAllStringSubmatch(content, -1)
	if len(nums) != len(titles) {
		return nil, fmt.Errorf("topics file has %d <num> and %d <title> elements", len(nums), len(titles))
	}
	topics := make([]Topic, 0, len(nums))
	seen := make(map[string]struct{}, len(nums))
	for i := range nums {
		id := strings.TrimSpace(nums[i][1])
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate topic %s", id)
		}
		seen[id] = struct{}{}
		topics = append(topics, Topic{
			ID:   id,
			Text: strings.Join(strings.Fields(titles[i][1]), " "),
		})
	}
	return topics, nil
}
