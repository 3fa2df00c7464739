package types

import (
	"fmt"
	"strings"
)

type FeedFormat uint8

const (
	FeedFormatGutendex FeedFormat = 1
	FeedFormatOPDS     FeedFormat = 2
)

func ParseFeedFormat(s string) (FeedFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gutendex", "json":
		return FeedFormatGutendex, nil
	case "opds":
		return FeedFormatOPDS, nil
	default:
		return 0, fmt.Errorf("unknown feed format %q, one of gutendex or opds expected", s)
	}
}

func (f FeedFormat) String() string {
	switch f {
	case FeedFormatGutendex:
		return "gutendex"
	case FeedFormatOPDS:
		return "opds"
	default:
		return fmt.Sprintf("FeedFormat(%d)", uint8(f))
	}
}
