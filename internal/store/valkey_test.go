package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefixPattern(t *testing.T) {
	cases := []struct {
		prefix   string
		expected string
	}{
		{"plandesk:", "plandesk:*"},
		{"", "*"},
		{"a[1]:", `a\[1\]:*`},
		{"team*?:", `team\*\?:*`},
		{`back\slash:`, `back\\slash:*`},
		{"[^x]", `\[\^x\]*`},
	}

	for _, c := range cases {
		t.Run(c.prefix, func(t *testing.T) {
			assert.Equal(t, c.expected, prefixPattern(c.prefix))
		})
	}
}
