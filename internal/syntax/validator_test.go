//go:build cgo

package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckValid(t *testing.T) {
	for _, code := range []string{
		"",
		"echo hello",
		"for i in 1 2 3; do\n  echo $i\ndone",
		"case $1 in\n  a) echo a ;;\n  *) echo other ;;\nesac",
		"f() { local x=1; echo \"$x\"; }\nf",
		"cat <<EOF\nheredoc\nEOF",
	} {
		errs, err := Check(code)
		require.NoError(t, err)
		assert.Empty(t, errs, "code: %q", code)
	}
}

func TestCheckInvalid(t *testing.T) {
	errs, err := Check("echo ok\nif then fi )")
	require.NoError(t, err)
	require.NotEmpty(t, errs)
	for _, e := range errs {
		assert.Equal(t, 2, e.Line)
		assert.NotEmpty(t, e.Message)
	}
}
