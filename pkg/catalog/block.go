package catalog

// BlockType is the dimension a user block applies to.
type BlockType string

const (
	BlockAuthor    BlockType = "author"
	BlockBook      BlockType = "book"
	BlockPublisher BlockType = "publisher"
	BlockTaxonomy  BlockType = "taxonomy"
)

// Block is a user-scoped exclusion rule.
type Block struct {
	UserID    int64     `json:"user_id" db:"user_id" validate:"required,gt=0"`
	Type      BlockType `json:"block_type" db:"block_type" validate:"required,oneof=author book publisher taxonomy"`
	BlockID   int64     `json:"block_id" db:"block_id" validate:"required,gt=0"`
	BlockName string    `json:"block_name" db:"block_name" validate:"max=200"`
}

// IDSet is a set of record ids.
type IDSet map[int64]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Add inserts ids into the set.
func (s IDSet) Add(ids ...int64) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

// Slice returns the members in unspecified order.
func (s IDSet) Slice() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

// BlockSet is a user's block list partitioned by dimension.
type BlockSet struct {
	Books      IDSet
	Authors    IDSet
	Publishers IDSet
	Taxonomies IDSet
}

// NewBlockSet partitions blocks by type.
func NewBlockSet(blocks []Block) BlockSet {
	bs := BlockSet{
		Books:      NewIDSet(),
		Authors:    NewIDSet(),
		Publishers: NewIDSet(),
		Taxonomies: NewIDSet(),
	}
	for _, b := range blocks {
		switch b.Type {
		case BlockBook:
			bs.Books.Add(b.BlockID)
		case BlockAuthor:
			bs.Authors.Add(b.BlockID)
		case BlockPublisher:
			bs.Publishers.Add(b.BlockID)
		case BlockTaxonomy:
			bs.Taxonomies.Add(b.BlockID)
		}
	}
	return bs
}

// Empty reports whether the set blocks nothing.
func (bs BlockSet) Empty() bool {
	return len(bs.Books) == 0 && len(bs.Authors) == 0 &&
		len(bs.Publishers) == 0 && len(bs.Taxonomies) == 0
}
