package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/backoffice/internal/config"
)

// DocumentID identifies an issued document as PREFIX/MMnnn/YY, e.g. TKB/01007/25.
// The ordinal is padded to three digits and widens past 999.
type DocumentID struct {
	Prefix  string
	Year    int
	Month   int
	Ordinal int64
}

func (d DocumentID) String() string {
	return fmt.Sprintf("%s/%02d%03d/%02d", d.Prefix, d.Month, d.Ordinal, d.Year%100)
}

func (d DocumentID) IsZero() bool {
	return d.Prefix == "" && d.Ordinal == 0
}

func (d DocumentID) Period() Period {
	return Period{Prefix: d.Prefix, Year: d.Year, Month: d.Month}
}

func (d DocumentID) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *DocumentID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Parse reads the rendered form back. Two-digit years are placed in the 2000s.
func Parse(raw string) (DocumentID, error) {
	parts := strings.Split(strings.TrimSpace(raw), "/")
	if len(parts) != 3 {
		return DocumentID{}, ErrMalformedDocumentID
	}
	prefix, body, yy := parts[0], parts[1], parts[2]

	if !config.ValidPrefix(prefix) {
		return DocumentID{}, ErrInvalidPrefix
	}
	if len(body) < 5 || !allDigits(body) || len(yy) != 2 || !allDigits(yy) {
		return DocumentID{}, ErrMalformedDocumentID
	}

	month, _ := strconv.Atoi(body[:2])
	if month < 1 || month > 12 {
		return DocumentID{}, ErrMalformedDocumentID
	}
	// Ordinals are padded to three digits only. A wider one never starts with 0.
	if digits := body[2:]; len(digits) > 3 && digits[0] == '0' {
		return DocumentID{}, ErrMalformedDocumentID
	}
	ordinal, err := strconv.ParseInt(body[2:], 10, 64)
	if err != nil || ordinal < 1 {
		return DocumentID{}, ErrMalformedDocumentID
	}
	year, _ := strconv.Atoi(yy)

	return DocumentID{
		Prefix:  prefix,
		Year:    2000 + year,
		Month:   month,
		Ordinal: ordinal,
	}, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// Period is the scope a counter runs in. Ordinals restart at 1 every month.
type Period struct {
	Prefix string
	Year   int
	Month  int
}

func PeriodAt(prefix string, t time.Time) Period {
	return Period{Prefix: prefix, Year: t.Year(), Month: int(t.Month())}
}

func (p Period) Document(ordinal int64) DocumentID {
	return DocumentID{Prefix: p.Prefix, Year: p.Year, Month: p.Month, Ordinal: ordinal}
}
