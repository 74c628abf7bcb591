package registry

import (
	"errors"
	"testing"

	"github.com/project-copacetic/autofix/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInfo(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     *PackageInfo
		wantErr  bool
		wantKind error
	}{
		{
			name:  "registry package document",
			input: `{"name":"lodash","versions":{"4.17.0":{},"4.17.21":{}},"dist-tags":{"latest":"4.17.21"}}`,
			want:  &PackageInfo{Name: "lodash", Versions: []string{"4.17.0", "4.17.21"}},
		},
		{
			name:  "registry version document",
			input: `{"name":"lodash","version":"4.17.21","dist":{"tarball":"https://registry.yarnpkg.com/lodash/-/lodash-4.17.21.tgz","shasum":"679591c564c3bffaae8454cf0b3df370c3d6911c","integrity":"sha512-v2kDE=="}}`,
			want: &PackageInfo{
				Name:    "lodash",
				Version: "4.17.21",
				Dist: &Dist{
					Tarball:   "https://registry.yarnpkg.com/lodash/-/lodash-4.17.21.tgz",
					Shasum:    "679591c564c3bffaae8454cf0b3df370c3d6911c",
					Integrity: "sha512-v2kDE==",
				},
			},
		},
		{
			name:  "yarn info output nested under data",
			input: `{"type":"inspect","data":{"name":"left-pad","versions":["1.0.0","1.3.0"],"dist":{"tarball":"t.tgz","shasum":"abc"}}}`,
			want: &PackageInfo{
				Name:     "left-pad",
				Versions: []string{"1.0.0", "1.3.0"},
				Dist:     &Dist{Tarball: "t.tgz", Shasum: "abc"},
			},
		},
		{
			name:  "no version list",
			input: `{"name":"ghost"}`,
			want:  &PackageInfo{Name: "ghost"},
		},
		{
			name:     "invalid json",
			input:    `{"name":`,
			wantErr:  true,
			wantKind: types.ErrRegistryQuery,
		},
		{
			name:     "not an object",
			input:    `["1.0.0"]`,
			wantErr:  true,
			wantKind: types.ErrRegistryQuery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInfo([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantKind))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDistResolved(t *testing.T) {
	assert.Equal(t, "https://r/x.tgz#abc", (&Dist{Tarball: "https://r/x.tgz", Shasum: "abc"}).Resolved())
	assert.Equal(t, "https://r/x.tgz", (&Dist{Tarball: "https://r/x.tgz"}).Resolved())
}

func TestDistSRI(t *testing.T) {
	assert.Equal(t, "sha512-x", (&Dist{Integrity: "sha512-x", Shasum: "00ff"}).SRI())
	assert.Equal(t, "sha1-AP8=", (&Dist{Shasum: "00ff"}).SRI())
	assert.Equal(t, "", (&Dist{Shasum: "not-hex"}).SRI())
	assert.Equal(t, "", (&Dist{}).SRI())
}

func TestEscapeName(t *testing.T) {
	assert.Equal(t, "lodash", EscapeName("lodash"))
	assert.Equal(t, "@babel%2fcore", EscapeName("@babel/core"))
	assert.Equal(t, "@babel/core@7.0.0", Spec("@babel/core", "7.0.0"))
	assert.Equal(t, "lodash", Spec("lodash", ""))
}

func TestNew(t *testing.T) {
	c, err := New(types.RegistryNPM, ".", Config{})
	require.NoError(t, err)
	assert.IsType(t, &NPMClient{}, c)

	c, err = New("", ".", Config{})
	require.NoError(t, err)
	assert.IsType(t, &NPMClient{}, c)

	c, err = New(types.RegistryYarn, "/src/web", Config{RetryCount: 2})
	require.NoError(t, err)
	require.IsType(t, &YarnClient{}, c)
	assert.Equal(t, "/src/web", c.(*YarnClient).dir)

	_, err = New("pnpm", ".", Config{})
	assert.ErrorContains(t, err, `unsupported registry mode "pnpm"`)
}
