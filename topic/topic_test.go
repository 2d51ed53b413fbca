package topic

import "testing"

func TestValidateName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"a/b/c", false},
		{"", true},
		{"a/+/c", true},
		{"a/#", true},
	}
	for _, c := range cases {
		err := ValidateName(c.name)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateName(%q) err=%v, wantErr=%v", c.name, err, c.wantErr)
		}
	}
}

func TestValidateFilter(t *testing.T) {
	cases := []struct {
		filter  string
		wantErr bool
	}{
		{"a/b/c", false},
		{"a/+/c", false},
		{"a/#", false},
		{"a/#/b", true},
		{"a/b+", true},
		{"", true},
		{"$share/group1/a/b", false},
		{"$share//a/b", true},
		{"$share/group1", true},
	}
	for _, c := range cases {
		_, err := ValidateFilter(c.filter)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateFilter(%q) err=%v, wantErr=%v", c.filter, err, c.wantErr)
		}
	}
}

func TestValidateFilterSharedParsing(t *testing.T) {
	shared, err := ValidateFilter("$share/g/a/b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shared == nil || shared.Group != "g" || shared.Filter != "a/b" {
		t.Fatalf("got %+v", shared)
	}
}

func TestIsWildcard(t *testing.T) {
	if !IsWildcard("a/+") || !IsWildcard("a/#") || IsWildcard("a/b") {
		t.Fatalf("IsWildcard mismatch")
	}
}
