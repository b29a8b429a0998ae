package drops

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	"golang.org/x/crypto/blake2b"
)

// The on-disk form is the one the scraper has always written:
//
//	{"<section>": {"<quest>": [<ap>, {"<item>": <probability>, ...]}, ...}, ...}
//
// encoding/json cannot keep object key order in a map, so reading goes
// through gjson and writing is done by hand.

// Parse decodes a drops document. Structural problems (wrong shapes, missing
// or fractional AP, non-numeric rates) come back as *ValidationError; value
// ranges are left to Validate.
func Parse(data []byte) (*Dataset, error) {
	if !gjson.ValidBytes(data) {
		return nil, &ValidationError{Reason: "document is not valid JSON"}
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, &ValidationError{Reason: "document root must be an object of sections"}
	}

	ds := &Dataset{}
	var parseErr error

	root.ForEach(func(sk, sv gjson.Result) bool {
		section := Section{Name: sk.String()}
		if !sv.IsObject() {
			parseErr = &ValidationError{Node: section.Name, Reason: "section must be an object of quests"}
			return false
		}
		sv.ForEach(func(qk, qv gjson.Result) bool {
			q, err := parseQuest(section.Name, qk.String(), qv)
			if err != nil {
				parseErr = err
				return false
			}
			section.Quests = append(section.Quests, q)
			return true
		})
		if parseErr != nil {
			return false
		}
		ds.Sections = append(ds.Sections, section)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return ds, nil
}

func parseQuest(section, name string, v gjson.Result) (Quest, error) {
	id := NodeID(section, name)
	if !v.IsArray() {
		return Quest{}, &ValidationError{Node: id, Reason: "quest must be an [ap, drops] pair"}
	}
	parts := v.Array()
	if len(parts) < 1 || parts[0].Type == gjson.Null {
		return Quest{}, &ValidationError{Node: id, Reason: "missing AP cost"}
	}
	if parts[0].Type != gjson.Number {
		return Quest{}, &ValidationError{Node: id, Reason: "AP cost is not a number"}
	}
	ap := parts[0].Num
	if ap != math.Trunc(ap) || ap > math.MaxInt32 || ap < math.MinInt32 {
		return Quest{}, &ValidationError{Node: id, Reason: fmt.Sprintf("AP cost %v is not an integer", ap)}
	}

	q := Quest{Name: name, AP: int(ap), Drops: DropTable{}}
	if len(parts) < 2 || parts[1].Type == gjson.Null {
		return q, nil
	}
	if !parts[1].IsObject() {
		return Quest{}, &ValidationError{Node: id, Reason: "drop table must be an object"}
	}

	var dropErr error
	parts[1].ForEach(func(ik, iv gjson.Result) bool {
		if iv.Type != gjson.Number {
			dropErr = &ValidationError{Node: id, Item: ik.String(), Reason: "probability is not a number"}
			return false
		}
		q.Drops[ik.String()] = iv.Num
		return true
	})
	if dropErr != nil {
		return Quest{}, dropErr
	}

	return q, nil
}

// MarshalJSON writes the dataset in the nested section/quest form, keeping
// section and quest order.
func (d *Dataset) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range d.Sections {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, s.Name); err != nil {
			return nil, err
		}
		buf.WriteByte('{')
		for j, q := range s.Quests {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeKey(&buf, q.Name); err != nil {
				return nil, err
			}
			table := q.Drops
			if table == nil {
				table = DropTable{}
			}
			dropsJSON, err := json.Marshal(table)
			if err != nil {
				return nil, fmt.Errorf("failed to encode drops of %s: %w", NodeID(s.Name, q.Name), err)
			}
			fmt.Fprintf(&buf, "[%d,%s]", q.AP, dropsJSON)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON lets a dataset be embedded in larger JSON documents.
func (d *Dataset) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}

func writeKey(buf *bytes.Buffer, key string) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	return nil
}

// Load reads and parses a drops file.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read drops file: %w", err)
	}
	ds, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse drops file %s: %w", path, err)
	}
	return ds, nil
}

// Save writes the dataset to path, creating parent directories.
func (d *Dataset) Save(path string) error {
	data, err := d.MarshalJSON()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create drops directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write drops file: %w", err)
	}
	return nil
}

// Digest identifies a dataset snapshot: the hex BLAKE2b-256 of its JSON form.
func (d *Dataset) Digest() (string, error) {
	data, err := d.MarshalJSON()
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
