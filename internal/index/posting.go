package index

// Posting records how often a term occurs in one document.
type Posting struct {
	DocID     string `cbor:"1,keyasint"`
	Frequency int    `cbor:"2,keyasint"`
}

// PostingList is sorted ascending by DocID with unique ids.
type PostingList []Posting

// TermEntry pairs a term with its postings. Snapshot order is by term.
type TermEntry struct {
	Term     string
	Postings PostingList
}

// Stats are the corpus-level figures the scoring models need.
type Stats struct {
	DocCount     int
	TotalTokens  int64
	AvgDocLength float64
}
