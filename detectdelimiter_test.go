package mirnaprep

import (
	"strings"
	"testing"
)

func TestDetermineDelimiter(t *testing.T) {
	tabbed := "#miRNA\tread_count\tprecursor\n" +
		"bta-let-7a-5p\t12\tbta-let-7a-1\n" +
		"bta-miR-21-5p\t7\tbta-mir-21\n"
	if got := DetermineDelimiter(strings.NewReader(tabbed), ' '); got != '\t' {
		t.Errorf("got %q, expected a tab", got)
	}

	commas := "a,b,c\n1,2,3\n4,5,6\n"
	if got := DetermineDelimiter(strings.NewReader(commas), ' '); got != ',' {
		t.Errorf("got %q, expected a comma", got)
	}
}
