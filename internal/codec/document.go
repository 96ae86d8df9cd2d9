package codec

import (
	"fmt"
	"sort"

	"transformstate/internal/document"
	"transformstate/internal/metadata"
)

// Document field names.
const (
	TypeWrapperField               = "transform_metadata"
	TransformIDField               = "transform_id"
	AfterKeyField                  = "after_key"
	LastUpdatedAtField             = "last_updated_at"
	StatusField                    = "status"
	FailureReasonField             = "failure_reason"
	StatsField                     = "stats"
	ShardIDToGlobalCheckpointField = "shard_id_to_global_checkpoint"
	ContinuousStatsField           = "continuous_stats"
	pagesProcessedField            = "pages_processed"
	documentsProcessedField        = "documents_processed"
	documentsIndexedField          = "documents_indexed"
	indexTimeInMillisField         = "index_time_in_millis"
	searchTimeInMillisField        = "search_time_in_millis"
	lastTimestampField             = "last_timestamp"
	documentsBehindField           = "documents_behind"
)

// DocumentCodec is the field-tagged object form used for persistence. It
// never carries ID, SeqNo or PrimaryTerm; the store keeps those beside the
// document.
type DocumentCodec struct {
	ContentType document.ContentType
	// WithType nests the object under "transform_metadata", the shape used
	// when the record is embedded in a larger document.
	WithType bool
}

func NewDocumentCodec(ct document.ContentType) DocumentCodec {
	return DocumentCodec{ContentType: ct, WithType: true}
}

func (c DocumentCodec) Name() string { return c.ContentType.String() }

func (c DocumentCodec) Encode(m metadata.TransformMetadata) ([]byte, error) {
	b := document.NewBuilder().StartObject()
	if c.WithType {
		b.StartObjectField(TypeWrapperField)
	}
	WriteDocument(b, m)
	if c.WithType {
		b.EndObject()
	}
	return b.EndObject().Bytes(c.ContentType)
}

// WriteDocument writes the fields of m into the currently open object of b.
func WriteDocument(b *document.Builder, m metadata.TransformMetadata) {
	b.Field(TransformIDField, m.TransformID)
	if m.AfterKey != nil {
		b.Field(AfterKeyField, m.AfterKey)
	}
	b.Field(LastUpdatedAtField, m.LastUpdatedAt)
	b.Field(StatusField, m.Status.String())
	// failure_reason is always present, null when unset, unlike after_key.
	if m.FailureReason != nil {
		b.Field(FailureReasonField, *m.FailureReason)
	} else {
		b.NullField(FailureReasonField)
	}
	writeStats(b.StartObjectField(StatsField), m.Stats)
	b.EndObject()
	if m.ShardIDToGlobalCheckpoint != nil {
		b.StartObjectField(ShardIDToGlobalCheckpointField)
		shards := make([]metadata.ShardID, 0, len(m.ShardIDToGlobalCheckpoint))
		for s := range m.ShardIDToGlobalCheckpoint {
			shards = append(shards, s)
		}
		sort.Slice(shards, func(i, j int) bool { return shards[i].String() < shards[j].String() })
		for _, s := range shards {
			b.Field(s.String(), m.ShardIDToGlobalCheckpoint[s])
		}
		b.EndObject()
	}
	if cs := m.ContinuousStats; cs != nil {
		b.StartObjectField(ContinuousStatsField)
		if cs.LastTimestamp != nil {
			b.Field(lastTimestampField, *cs.LastTimestamp)
		} else {
			b.NullField(lastTimestampField)
		}
		if cs.DocumentsBehind != nil {
			b.Field(documentsBehindField, cs.DocumentsBehind)
		}
		b.EndObject()
	}
}

func writeStats(b *document.Builder, s metadata.TransformStats) {
	b.Field(pagesProcessedField, s.PagesProcessed).
		Field(documentsProcessedField, s.DocumentsProcessed).
		Field(documentsIndexedField, s.DocumentsIndexed).
		Field(indexTimeInMillisField, s.IndexTimeInMillis).
		Field(searchTimeInMillisField, s.SearchTimeInMillis)
}

func (c DocumentCodec) Decode(data []byte, v Version) (metadata.TransformMetadata, error) {
	p, err := document.NewParser(data)
	if err != nil {
		return metadata.TransformMetadata{}, err
	}
	if c.WithType {
		inner, err := p.Object(TypeWrapperField)
		if err != nil {
			return metadata.TransformMetadata{}, err
		}
		if inner == nil {
			return metadata.TransformMetadata{}, &MissingFieldError{Field: TypeWrapperField}
		}
		p = inner
	}
	return ParseDocument(p, v)
}

// ParseDocument reads a record from an object positioned at p. Unknown
// fields are skipped.
func ParseDocument(p *document.Parser, v Version) (metadata.TransformMetadata, error) {
	m := metadata.TransformMetadata{ID: v.ID, SeqNo: v.SeqNo, PrimaryTerm: v.PrimaryTerm}
	var hasTransformID, hasLastUpdated, hasStatus, hasStats bool

	err := p.Fields(func(name string, f *document.Parser) error {
		var err error
		switch name {
		case TransformIDField:
			if f.IsNull() {
				return nil
			}
			m.TransformID, err = f.Text()
			hasTransformID = err == nil
		case AfterKeyField:
			m.AfterKey, err = f.Map()
		case LastUpdatedAtField:
			ts, terr := f.Time()
			if ts != nil {
				m.LastUpdatedAt, hasLastUpdated = *ts, true
			}
			err = terr
		case StatusField:
			if f.IsNull() {
				return nil
			}
			var text string
			if text, err = f.Text(); err != nil {
				return err
			}
			m.Status, err = metadata.ParseStatus(text)
			hasStatus = err == nil
		case FailureReasonField:
			m.FailureReason, err = f.OptionalText()
		case StatsField:
			if f.IsNull() {
				return nil
			}
			m.Stats, err = parseStats(f)
			hasStats = err == nil
		case ShardIDToGlobalCheckpointField:
			m.ShardIDToGlobalCheckpoint, err = parseCheckpoints(f)
		case ContinuousStatsField:
			m.ContinuousStats, err = parseContinuousStats(f)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return metadata.TransformMetadata{}, err
	}

	switch {
	case !hasTransformID:
		return metadata.TransformMetadata{}, &MissingFieldError{Field: TransformIDField}
	case !hasLastUpdated:
		return metadata.TransformMetadata{}, &MissingFieldError{Field: LastUpdatedAtField}
	case !hasStatus:
		return metadata.TransformMetadata{}, &MissingFieldError{Field: StatusField}
	case !hasStats:
		return metadata.TransformMetadata{}, &MissingFieldError{Field: StatsField}
	}
	return m, nil
}

func parseStats(p *document.Parser) (metadata.TransformStats, error) {
	var s metadata.TransformStats
	seen := map[string]bool{}
	err := p.Fields(func(name string, f *document.Parser) error {
		var dst *int64
		switch name {
		case pagesProcessedField:
			dst = &s.PagesProcessed
		case documentsProcessedField:
			dst = &s.DocumentsProcessed
		case documentsIndexedField:
			dst = &s.DocumentsIndexed
		case indexTimeInMillisField:
			dst = &s.IndexTimeInMillis
		case searchTimeInMillisField:
			dst = &s.SearchTimeInMillis
		default:
			return nil
		}
		n, err := f.Int64()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst, seen[name] = n, true
		return nil
	})
	if err != nil {
		return s, err
	}
	for _, name := range []string{pagesProcessedField, documentsProcessedField, documentsIndexedField, indexTimeInMillisField, searchTimeInMillisField} {
		if !seen[name] {
			return s, &MissingFieldError{Field: StatsField + "." + name}
		}
	}
	return s, nil
}

func parseCheckpoints(p *document.Parser) (map[metadata.ShardID]int64, error) {
	if p.IsNull() {
		return nil, nil
	}
	out := map[metadata.ShardID]int64{}
	err := p.Fields(func(name string, f *document.Parser) error {
		shard, err := metadata.ParseShardID(name)
		if err != nil {
			return err
		}
		cp, err := f.Int64()
		if err != nil {
			return err
		}
		out[shard] = cp
		return nil
	})
	return out, err
}

func parseContinuousStats(p *document.Parser) (*metadata.ContinuousStats, error) {
	if p.IsNull() {
		return nil, nil
	}
	cs := &metadata.ContinuousStats{}
	err := p.Fields(func(name string, f *document.Parser) error {
		var err error
		switch name {
		case lastTimestampField:
			cs.LastTimestamp, err = f.Time()
		case documentsBehindField:
			if f.IsNull() {
				return nil
			}
			cs.DocumentsBehind = map[string]int64{}
			err = f.Fields(func(index string, n *document.Parser) error {
				v, err := n.Int64()
				cs.DocumentsBehind[index] = v
				return err
			})
		}
		return err
	})
	return cs, err
}
