package metadata

import (
	"fmt"
	"strconv"
	"strings"
)

// UnknownIndexUUID is assigned to indices whose UUID is not carried by the
// text form of a shard id.
const UnknownIndexUUID = "_na_"

type Index struct {
	Name string
	UUID string
}

// ShardID names one shard of one index.
type ShardID struct {
	Index Index
	ID    int
}

func NewShardID(index string, id int) ShardID {
	return ShardID{Index: Index{Name: index, UUID: UnknownIndexUUID}, ID: id}
}

// String renders the shard as "[index][id]".
func (s ShardID) String() string {
	return "[" + s.Index.Name + "][" + strconv.Itoa(s.ID) + "]"
}

// ParseShardID reverses String. The index UUID is not recoverable from the
// text form and is set to UnknownIndexUUID.
func ParseShardID(text string) (ShardID, error) {
	if !strings.HasPrefix(text, "[") || !strings.HasSuffix(text, "]") {
		return ShardID{}, fmt.Errorf("shard id %q: want [index][id]", text)
	}
	split := strings.LastIndex(text, "][")
	if split < 1 {
		return ShardID{}, fmt.Errorf("shard id %q: want [index][id]", text)
	}
	name := text[1:split]
	id, err := strconv.Atoi(text[split+2 : len(text)-1])
	if err != nil {
		return ShardID{}, fmt.Errorf("shard id %q: %w", text, err)
	}
	return NewShardID(name, id), nil
}
