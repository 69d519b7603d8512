package directory

import (
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// DefaultDumpFilter selects every entry carrying a DN.
const DefaultDumpFilter = "(distinguishedName=*)"

// dumpProgressEvery controls how often the dump operations log progress.
const dumpProgressEvery = 50

// LDIFDump streams every entry matching filter (DefaultDumpFilter when
// empty) to w as LDIF 1.0 without line wrapping. Returns the entry count.
func (c *Client) LDIFDump(w io.Writer, filter string) (int, error) {
	if filter == "" {
		filter = DefaultDumpFilter
	}

	if _, err := fmt.Fprintf(w, "version: 1\n\n"); err != nil {
		return 0, fmt.Errorf("ldif write: %w", err)
	}

	count := 0
	err := c.GetAttributesMatchFunc(filter, []string{"*"}, nil, func(e Entry) error {
		if err := writeLDIFEntry(w, e); err != nil {
			return err
		}
		count++
		if count%dumpProgressEvery == 0 {
			c.log.Debugw("ldif dump progress", "entries", count)
		}
		return nil
	})
	if err != nil {
		return count, err
	}
	return count, nil
}

func writeLDIFEntry(w io.Writer, e Entry) error {
	if err := writeLDIFLine(w, "dn", []byte(e.DN)); err != nil {
		return err
	}
	for _, attr := range e.Attributes {
		for _, raw := range attr.Raw {
			if err := writeLDIFLine(w, attr.Name, raw); err != nil {
				return err
			}
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func writeLDIFLine(w io.Writer, name string, value []byte) error {
	var err error
	if ldifSafe(value) {
		_, err = fmt.Fprintf(w, "%s: %s\n", name, value)
	} else {
		_, err = fmt.Fprintf(w, "%s:: %s\n", name, base64.StdEncoding.EncodeToString(value))
	}
	if err != nil {
		return fmt.Errorf("ldif write: %w", err)
	}
	return nil
}

// ldifSafe reports whether a value may appear verbatim per RFC 2849: ASCII
// printable, no leading space/colon/less-than, no NUL/CR/LF anywhere.
func ldifSafe(v []byte) bool {
	if len(v) == 0 {
		return true
	}
	switch v[0] {
	case ' ', ':', '<':
		return false
	}
	for _, b := range v {
		if b == 0 || b == '\r' || b == '\n' || b > 0x7F {
			return false
		}
	}
	return true
}

// CSVDump writes one RFC 4180 record per matching entry, one column per
// requested attribute, multiple values joined with "|". The first record is
// the header. Returns the entry count.
func (c *Client) CSVDump(w io.Writer, filter string, attrs []string) (int, error) {
	if len(attrs) == 0 {
		return 0, &Error{Kind: KindInvalidArgument, Op: "csv dump",
			Err: fmt.Errorf("no attributes given")}
	}
	if filter == "" {
		filter = DefaultDumpFilter
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(attrs); err != nil {
		return 0, fmt.Errorf("csv write: %w", err)
	}

	count := 0
	err := c.GetAttributesMatchFunc(filter, attrs, nil, func(e Entry) error {
		record := make([]string, len(attrs))
		for i, a := range attrs {
			record[i] = strings.Join(e.Get(a), "|")
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("csv write: %w", err)
		}
		count++
		if count%dumpProgressEvery == 0 {
			c.log.Debugw("csv dump progress", "entries", count)
		}
		return nil
	})
	if err != nil {
		return count, err
	}
	cw.Flush()
	return count, cw.Error()
}
