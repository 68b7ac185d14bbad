package secindex

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	kverrs "github.com/cuemby/warrendb/pkg/errs"
	"github.com/cuemby/warrendb/pkg/kv"
)

const (
	nsFullText     = "ix:ft:"      // ix:ft:{collection}:{column}:{term} -> roaring bitmap of doc ids
	nsFullTextDocs = "ix:ftdoc:"   // ix:ftdoc:{collection}:{column}:{docid} -> pk (reverse map)
	nsFullTextPKs  = "ix:ftpk:"    // ix:ftpk:{collection}:{column}:{pk} -> docid (forward map)
	nsFullTextNext = "ix:ftnext:"  // ix:ftnext:{collection}:{column} -> next free docid
)

// FullText is a BM25-free inverted index: one postings list per term,
// stored as a roaring bitmap of document ids. Documents are identified by
// a per-column monotonically assigned uint32, since roaring bitmaps hold
// integers, not PK strings; ix:ftdoc/ix:ftpk translate between the two.
//
// BM25 scoring itself lives in the query engine's expression evaluator
// (spec §4.6.5 FULLTEXT/BM25); this index only answers "which documents
// contain this term" candidate sets for it to score.
type FullText struct {
	store kv.Store

	mu      sync.Mutex
	nextDoc map[string]uint32 // collection:column -> next docid, cached
}

// NewFullText builds a full-text indexer over store.
func NewFullText(store kv.Store) *FullText {
	return &FullText{store: store, nextDoc: make(map[string]uint32)}
}

func ftKey(collection, column string) string { return collection + "\x00" + column }

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return fields
}

// Put tokenizes text and adds pk to every term's postings list for
// collection.column.
func (f *FullText) Put(collection, column, pk, text string) error {
	docID, err := f.docIDFor(collection, column, pk)
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	var ops []kv.Op
	for _, term := range tokenize(text) {
		if seen[term] {
			continue
		}
		seen[term] = true
		key := []byte(nsFullText + ftKey(collection, column) + "\x00" + term)
		bm, err := f.loadBitmap(key)
		if err != nil {
			return err
		}
		bm.Add(docID)
		enc, err := bm.ToBytes()
		if err != nil {
			return kverrs.Internal.Wrap(err)
		}
		ops = append(ops, kv.PutOp(key, enc))
	}
	if len(ops) == 0 {
		return nil
	}
	return f.store.WriteBatch(ops)
}

// Search returns the PKs of every document containing term in
// collection.column.
func (f *FullText) Search(collection, column, term string) ([]string, error) {
	key := []byte(nsFullText + ftKey(collection, column) + "\x00" + strings.ToLower(term))
	bm, err := f.loadBitmap(key)
	if err != nil {
		return nil, err
	}
	it := bm.Iterator()
	var pks []string
	for it.HasNext() {
		docID := it.Next()
		pk, err := f.pkForDoc(collection, column, docID)
		if err != nil {
			return nil, err
		}
		if pk != "" {
			pks = append(pks, pk)
		}
	}
	return pks, nil
}

func (f *FullText) loadBitmap(key []byte) (*roaring.Bitmap, error) {
	v, err := f.store.Get(key)
	if err != nil {
		return nil, err
	}
	bm := roaring.New()
	if v == nil {
		return bm, nil
	}
	if err := bm.UnmarshalBinary(v); err != nil {
		return nil, kverrs.Internal.Wrap(err)
	}
	return bm, nil
}

func (f *FullText) docIDFor(collection, column, pk string) (uint32, error) {
	pkKey := []byte(nsFullTextPKs + ftKey(collection, column) + "\x00" + pk)
	if v, err := f.store.Get(pkKey); err != nil {
		return 0, err
	} else if v != nil {
		var id uint32
		if err := json.Unmarshal(v, &id); err != nil {
			return 0, kverrs.Internal.Wrap(err)
		}
		return id, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	ns := ftKey(collection, column)
	next := f.nextDoc[ns]
	if next == 0 {
		nextKey := []byte(nsFullTextNext + ns)
		if v, err := f.store.Get(nextKey); err != nil {
			return 0, err
		} else if v != nil {
			_ = json.Unmarshal(v, &next)
		}
	}
	id := next
	f.nextDoc[ns] = next + 1

	idEnc, _ := json.Marshal(id)
	nextEnc, _ := json.Marshal(id + 1)
	docKey := []byte(nsFullTextDocs + ns + "\x00" + encodeDocID(id))
	if err := f.store.WriteBatch([]kv.Op{
		kv.PutOp(pkKey, idEnc),
		kv.PutOp(docKey, []byte(pk)),
		kv.PutOp([]byte(nsFullTextNext+ns), nextEnc),
	}); err != nil {
		return 0, err
	}
	return id, nil
}

func (f *FullText) pkForDoc(collection, column string, docID uint32) (string, error) {
	docKey := []byte(nsFullTextDocs + ftKey(collection, column) + "\x00" + encodeDocID(docID))
	v, err := f.store.Get(docKey)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func encodeDocID(id uint32) string {
	return string(encodeNumber(float64(id)))
}

// Erase removes pk from every term it was indexed under for
// collection.column. text must be the same text originally passed to Put.
func (f *FullText) Erase(collection, column, pk, text string) error {
	pkKey := []byte(nsFullTextPKs + ftKey(collection, column) + "\x00" + pk)
	v, err := f.store.Get(pkKey)
	if err != nil || v == nil {
		return err
	}
	var docID uint32
	if err := json.Unmarshal(v, &docID); err != nil {
		return kverrs.Internal.Wrap(err)
	}

	seen := make(map[string]bool)
	var ops []kv.Op
	for _, term := range tokenize(text) {
		if seen[term] {
			continue
		}
		seen[term] = true
		key := []byte(nsFullText + ftKey(collection, column) + "\x00" + term)
		bm, err := f.loadBitmap(key)
		if err != nil {
			return err
		}
		bm.Remove(docID)
		enc, err := bm.ToBytes()
		if err != nil {
			return kverrs.Internal.Wrap(err)
		}
		ops = append(ops, kv.PutOp(key, enc))
	}
	ops = append(ops, kv.DeleteOp(pkKey), kv.DeleteOp([]byte(nsFullTextDocs+ftKey(collection, column)+"\x00"+encodeDocID(docID))))
	return f.store.WriteBatch(ops)
}
