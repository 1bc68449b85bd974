package setup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandTemplates(t *testing.T) {
	type Binary struct {
		Path string `template:""`
	}
	type S struct {
		Dest     string `template:""`
		Raw      string
		Skipped  string  `template:"-"`
		Ptr      *string `template:""`
		Nested   Binary
		Optional *Binary
		Missing  *Binary
		List     []Binary
		Names    []string `template:""`
		Headers  map[string]string
		Counts   map[string]int
	}
	ptr := "${HOME_DIR}/ptr"
	in := S{
		Dest:     "${HOME_DIR}/out",
		Raw:      "${HOME_DIR}",
		Skipped:  "${HOME_DIR}",
		Ptr:      &ptr,
		Nested:   Binary{Path: "${BIN}"},
		Optional: &Binary{Path: "${BIN}"},
		List:     []Binary{{Path: "a/${BIN}"}, {Path: "plain"}},
		Names:    []string{"${BIN}"},
		Headers:  map[string]string{"X-Home": "${HOME_DIR}"},
		Counts:   map[string]int{"k": 1},
	}

	vars := map[string]string{"HOME_DIR": "/home/u", "BIN": "7zz"}
	require.NoError(t, ExpandTemplates(&in, vars))

	assert.Equal(t, "/home/u/out", in.Dest)
	assert.Equal(t, "${HOME_DIR}", in.Raw)
	assert.Equal(t, "${HOME_DIR}", in.Skipped)
	assert.Equal(t, "/home/u/ptr", *in.Ptr)
	assert.Equal(t, "7zz", in.Nested.Path)
	assert.Equal(t, "7zz", in.Optional.Path)
	assert.Nil(t, in.Missing)
	assert.Equal(t, []Binary{{Path: "a/7zz"}, {Path: "plain"}}, in.List)
	assert.Equal(t, []string{"7zz"}, in.Names)
	assert.Equal(t, map[string]string{"X-Home": "/home/u"}, in.Headers)
	assert.Equal(t, map[string]int{"k": 1}, in.Counts)
}

func TestExpandTemplates_NilAndInvalid(t *testing.T) {
	type S struct {
		Path string `template:""`
	}
	var in *S
	require.NoError(t, ExpandTemplates(in, nil))

	n := 3
	require.Error(t, ExpandTemplates(&n, nil))
}

func TestExpandTemplates_MissingVariable(t *testing.T) {
	type S struct {
		Path string `template:""`
	}
	in := S{Path: "${MISSING}"}
	err := ExpandTemplates(&in, map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MISSING")
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		variables  map[string]string
		want       string
		errContain string
	}{
		{name: "no variables", value: "plain", want: "plain"},
		{name: "single", value: "${BUCKET}", variables: map[string]string{"BUCKET": "b"}, want: "b"},
		{name: "short form", value: "$BUCKET/x", variables: map[string]string{"BUCKET": "b"}, want: "b/x"},
		{
			name:      "several",
			value:     "${HOST}/${BUCKET}/archive.zip",
			variables: map[string]string{"HOST": "h", "BUCKET": "b"},
			want:      "h/b/archive.zip",
		},
		{name: "disallowed", value: "${SECRET}", errContain: `environment variable "SECRET" is not in the allowed list`},
		{name: "all missing reported", value: "${A}${B}", errContain: `"B"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.value, tt.variables)
			if tt.errContain != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContain)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandMap(t *testing.T) {
	got, err := ExpandMap(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ExpandMap(map[string]string{"Authorization": "Bearer ${TOKEN}"}, map[string]string{"TOKEN": "t"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Authorization": "Bearer t"}, got)

	_, err = ExpandMap(map[string]string{"good": "x", "bad": "${NO}"}, nil)
	require.Error(t, err)
}

func TestAllowedVariables(t *testing.T) {
	t.Setenv("ARCHIVEKIT_TEST_SET", "v")
	vars := AllowedVariables([]string{"ARCHIVEKIT_TEST_SET", "ARCHIVEKIT_TEST_UNSET_X"})
	assert.Equal(t, map[string]string{"ARCHIVEKIT_TEST_SET": "v"}, vars)
}
