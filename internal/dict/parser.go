package dict

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// ErrNoDefinitions indicates the documentation contained no variable headers,
// which almost always means the wrong file was supplied.
var ErrNoDefinitions = errors.New("dict: no definitions found")

// Encoding names a supported documentation file encoding.
type Encoding string

const (
	// EncodingLatin1 matches the published documentation.txt, which is not UTF-8.
	EncodingLatin1 Encoding = "latin-1"
	EncodingUTF8   Encoding = "utf-8"
)

// ParseEncoding normalizes an encoding name.
func ParseEncoding(value string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(EncodingLatin1), "latin1", "iso-8859-1":
		return EncodingLatin1, nil
	case string(EncodingUTF8), "utf8":
		return EncodingUTF8, nil
	default:
		return "", fmt.Errorf("dict: unsupported encoding %q", value)
	}
}

func (e Encoding) reader(r io.Reader) io.Reader {
	if e == EncodingLatin1 {
		return charmap.ISO8859_1.NewDecoder().Reader(r)
	}
	return r
}

// Documentation line shapes:
//
//	MS Zoning (Nominal): Identifies the general zoning classification of the sale.
//	       A	Agriculture
//	       C	Commercial
//	Lot Frontage (Continuous): Linear feet of street connected to property
//
// A header names the variable and its kind. Qualitative headers are followed
// by value lines: exactly seven spaces, the value text, then a tab separating
// the value from its description.
var (
	headerPattern = regexp.MustCompile(`^([^(]+)\((Nominal|Ordinal|Discrete|Continuous)\):`)
	valuePattern  = regexp.MustCompile(`^ {7}([^\t]+)\t`)
)

// Parse reads variable definitions from documentation text. The reader must
// already be decoded; use ParseFile to handle latin-1 sources.
func Parse(r io.Reader) ([]Definition, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var defs []Definition
	var open *Definition
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if open != nil {
			if m := valuePattern.FindStringSubmatch(line); m != nil {
				open.Values = append(open.Values, strings.TrimSpace(m[1]))
				continue
			}
			// Anything else ends the value block; the line may itself
			// be the next header, so it falls through.
			defs = append(defs, *open)
			open = nil
		}
		m := headerPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		def := Definition{Name: strings.TrimSpace(m[1]), Kind: Kind(m[2])}
		if def.Kind.Qualitative() {
			def.Values = []string{}
			open = &def
			continue
		}
		defs = append(defs, def)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dict: scan documentation: %w", err)
	}
	// A qualitative block still open at EOF is a complete definition.
	if open != nil {
		defs = append(defs, *open)
	}
	if len(defs) == 0 {
		return nil, ErrNoDefinitions
	}
	return defs, nil
}

// ParseFile decodes and parses a documentation file.
func ParseFile(path string, enc Encoding) ([]Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dict: open documentation: %w", err)
	}
	defer f.Close()
	defs, err := Parse(enc.reader(f))
	if err != nil {
		if errors.Is(err, ErrNoDefinitions) {
			return nil, fmt.Errorf("dict: %s: %w", path, err)
		}
		return nil, err
	}
	return defs, nil
}
