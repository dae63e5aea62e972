package deploy

import "testing"

func TestParsePackageVersion(t *testing.T) {
	cases := []struct {
		in, name, version string
	}{
		{"myapp", "myapp", ""},
		{"myapp:1.2.3", "myapp", "1.2.3"},
		{"myapp:1.2.3:extra", "myapp:1.2.3", "extra"},
		{"myapp:", "myapp", ""},
	}
	for _, c := range cases {
		name, version := ParsePackageVersion(c.in)
		if name != c.name || version != c.version {
			t.Errorf("ParsePackageVersion(%q) = (%q, %q), want (%q, %q)", c.in, name, version, c.name, c.version)
		}
	}
}
