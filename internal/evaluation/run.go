package evaluation

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/runfile"
)

// Run is the outcome of evaluating a batch of topics. Every topic appears
// in exactly one of Results and Failures, unless the run was interrupted
// before reaching it.
type Run struct {
	ID       string
	Model    string
	Tag      string
	Results  map[string]*retrieval.Result
	Failures map[string]error
	Started  time.Time
	Finished time.Time
}

// Topics returns the topics with results, ascending.
func (r *Run) Topics() []string {
	topics := make([]string, 0, len(r.Results))
	for t := range r.Results {
		topics = append(topics, t)
	}
	runfile.SortTopics(topics)
	return topics
}

// Lines returns one run-file line per ranked document, topics ascending
// and ranks from 0.
func (r *Run) Lines() []runfile.Line {
	var lines []runfile.Line
	for _, topic := range r.Topics() {
		for rank, e := range r.Results[topic].Entries {
			lines = append(lines, runfile.Line{
				Topic: topic,
				DocID: e.DocID,
				Rank:  rank,
				Score: e.Score,
				Tag:   r.Tag,
			})
		}
	}
	return lines
}
