// Public domain.

package srcexpand_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/soniakeys/srcid/internal/srcexpand"
)

func ExampleExpand() {
	names := []string{"@2CG_PosErr90", "@2CG_ANGSEP"}
	fmt.Println(srcexpand.Expand(
		"ANGSEP_SDEV = 2.0 * ANGSEP / @2CG_PosErr90", names))
	// Output:
	// ANGSEP_SDEV = 2.0 * ANGSEP / $@2CG_PosErr90$
}

func ExampleVocabulary() {
	fmt.Println(srcexpand.Vocabulary("PUL", []string{"NAME", "EDOTD2"}))
	// Output:
	// [@PUL_NAME @PUL_EDOTD2]
}

func TestExpand(t *testing.T) {
	for _, tc := range []struct {
		text  string
		names []string
		want  string
	}{
		{"", []string{"@A_X"}, ""},
		{"no names here", []string{"@A_X"}, "no names here"},
		{"@A_X", nil, "@A_X"},
		{"@A_X", []string{"@A_X"}, "$@A_X$"},
		// longest name wins at the same position
		{"@A_XY > 1", []string{"@A_X", "@A_XY"}, "$@A_XY$ > 1"},
		{"@A_XY > 1", []string{"@A_XY", "@A_X"}, "$@A_XY$ > 1"},
		// earliest position wins over length
		{"@A_X + @A_XYZ", []string{"@A_XYZ", "@A_X"}, "$@A_X$ + $@A_XYZ$"},
		{"@A_X*@A_X", []string{"@A_X"}, "$@A_X$*$@A_X$"},
		// overlapping candidates: the first match consumes the text
		{"@A_B_C", []string{"@A_B", "B_C"}, "$@A_B$_C"},
		{"@PUL_EDOTD2 > 5e+33", []string{"@LAT_NAME", "@PUL_EDOTD2"},
			"$@PUL_EDOTD2$ > 5e+33"},
		{"x", []string{""}, "x"},
	} {
		if got := srcexpand.Expand(tc.text, tc.names); got != tc.want {
			t.Errorf("Expand(%q, %q) = %q, want %q", tc.text, tc.names, got, tc.want)
		}
	}
}

// removing delimiters restores the text, and delimited regions pair up.
func TestExpandReversible(t *testing.T) {
	names := []string{"@LAT_RA", "@LAT_RAJ2000", "@EGR_THETA95", "@EGR_THETA"}
	for _, text := range []string{
		"@LAT_RAJ2000 - @LAT_RA",
		"ANGSEP_SDEV = 2.0 * ANGSEP / @EGR_THETA95",
		"@EGR_THETA < @EGR_THETA95 && @LAT_RAJ2000 > 0",
	} {
		got := srcexpand.Expand(text, names)
		if strings.ReplaceAll(got, srcexpand.Delim, "") != text {
			t.Errorf("Expand(%q) = %q does not reduce to input", text, got)
		}
		parts := strings.Split(got, srcexpand.Delim)
		if len(parts)%2 != 1 {
			t.Fatalf("unbalanced delimiters in %q", got)
		}
		for i := 1; i < len(parts); i += 2 {
			found := false
			for _, n := range names {
				found = found || parts[i] == n
			}
			if !found {
				t.Errorf("delimited %q is not a name", parts[i])
			}
		}
	}
}

func TestExpandAll(t *testing.T) {
	l := []string{"@A_X > 1", ""}
	srcexpand.ExpandAll(l, []string{"@A_X"})
	if l[0] != "$@A_X$ > 1" || l[1] != "" {
		t.Errorf("ExpandAll = %q", l)
	}
}
