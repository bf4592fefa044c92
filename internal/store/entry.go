package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Entry is one saved consumption record. The nutrient fields are absolute
// values for Weight grams, stored as decimal text.
type Entry struct {
	ID           uint64    `json:"id"`
	Name         string    `json:"name"`
	Kcal         string    `json:"kcal"`
	Protein      string    `json:"protein"`
	Fat          string    `json:"fat"`
	Carbohydrate string    `json:"carbohydrate"`
	Weight       string    `json:"weight"`
	CreatedAt    time.Time `json:"created_at"`
}

// SchemaVersion is the version of the entry encoding and the data directory
// layout. Bump it whenever either changes.
const SchemaVersion = 1

// Encode serialises an Entry:
//
//	version       uvarint (=SchemaVersion)
//	name          uvarint length + UTF-8
//	kcal          uvarint length + text
//	protein       uvarint length + text
//	fat           uvarint length + text
//	carbohydrate  uvarint length + text
//	weight        uvarint length + text
//	created_at    varint unix nanoseconds
//
// The ID is the record key and is not part of the blob.
func (e Entry) Encode() []byte {
	var buf bytes.Buffer
	writeUvarint(&buf, SchemaVersion)
	for _, s := range []string{e.Name, e.Kcal, e.Protein, e.Fat, e.Carbohydrate, e.Weight} {
		writeString(&buf, s)
	}
	var ts int64
	if !e.CreatedAt.IsZero() {
		ts = e.CreatedAt.UnixNano()
	}
	writeVarint(&buf, ts)
	return buf.Bytes()
}

// Decode parses a blob produced by Encode. The caller sets ID.
func (e *Entry) Decode(data []byte) error {
	r := bytes.NewReader(data)

	ver, err := binary.ReadUvarint(r)
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if ver != SchemaVersion {
		return fmt.Errorf("%w: entry encoded with version %d", ErrSchemaVersion, ver)
	}

	fields := []struct {
		name string
		dst  *string
	}{
		{"name", &e.Name},
		{"kcal", &e.Kcal},
		{"protein", &e.Protein},
		{"fat", &e.Fat},
		{"carbohydrate", &e.Carbohydrate},
		{"weight", &e.Weight},
	}
	for _, f := range fields {
		if *f.dst, err = readString(r); err != nil {
			return fmt.Errorf("read %s: %w", f.name, err)
		}
	}

	ts, err := binary.ReadVarint(r)
	if err != nil {
		return fmt.Errorf("read created_at: %w", err)
	}
	e.CreatedAt = time.Time{}
	if ts != 0 {
		e.CreatedAt = time.Unix(0, ts).UTC()
	}
	return nil
}

func writeUvarint(w *bytes.Buffer, v uint64) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	w.Write(buf[:n])
}

func writeVarint(w *bytes.Buffer, v int64) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutVarint(buf[:], v)
	w.Write(buf[:n])
}

func writeString(w *bytes.Buffer, s string) {
	writeUvarint(w, uint64(len(s)))
	w.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	if n > uint64(r.Len()) {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
