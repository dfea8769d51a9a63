package filter

import (
	"errors"
	"testing"
)

type cert struct {
	Alias  string
	Issuer string
}

func certSchema() *Schema[cert] {
	return NewSchema("alias",
		Field[cert]{Name: "alias", Value: func(c cert) string { return c.Alias }},
		Field[cert]{Name: "issuer", Value: func(c cert) string { return c.Issuer }},
	)
}

func TestSearchContainsScenario(t *testing.T) {
	s := certSchema()
	items := []cert{{Alias: "alpha"}, {Alias: "beta"}, {Alias: "gamma"}}

	var got []string
	for _, it := range items {
		if s.Matches(it, Predicate{Attribute: "alias", Operator: Contains, Value: "a"}) {
			got = append(got, it.Alias)
		}
	}
	if len(got) != 3 {
		t.Fatalf("expected all three to contain a, got %v", got)
	}

	got = got[:0]
	for _, it := range items {
		if s.Matches(it, Predicate{Attribute: "alias", Operator: Contains, Value: "am"}) {
			got = append(got, it.Alias)
		}
	}
	if len(got) != 1 || got[0] != "gamma" {
		t.Fatalf("expected only gamma, got %v", got)
	}
}

func TestOperators(t *testing.T) {
	s := certSchema()
	item := cert{Alias: "WSO2Carbon", Issuer: "CN=localhost"}
	cases := []struct {
		p    Predicate
		want bool
	}{
		{Predicate{"alias", Contains, "carbon"}, true},
		{Predicate{"alias", StartsWith, "wso2"}, true},
		{Predicate{"alias", StartsWith, "carbon"}, false},
		{Predicate{"alias", EndsWith, "CARBON"}, true},
		{Predicate{"alias", Equals, "WSO2Carbon"}, true},
		{Predicate{"alias", Equals, "wso2carbon"}, false},
		{Predicate{"alias", NotEquals, "x"}, true},
		{Predicate{"issuer", Contains, "localhost"}, true},
		{Predicate{"subject", Contains, "x"}, false},
	}
	for _, tc := range cases {
		if got := s.Matches(item, tc.p); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.p, got, tc.want)
		}
	}
}

func TestMatchesIsPure(t *testing.T) {
	s := certSchema()
	item := cert{Alias: "alpha", Issuer: "CN=a"}
	before := item
	p := Predicate{Attribute: "alias", Operator: StartsWith, Value: "AL"}
	first := s.Matches(item, p)
	second := s.Matches(item, p)
	if first != second {
		t.Fatalf("matches not deterministic")
	}
	if item != before {
		t.Fatalf("item mutated")
	}
}

func TestBuildRejectsUnknownAttribute(t *testing.T) {
	s := certSchema()
	_, err := s.Build("subject", "co", "x")
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "attribute" {
		t.Fatalf("expected attribute validation error, got %v", err)
	}
	if !errors.Is(err, ErrUnknownAttribute) {
		t.Fatalf("expected ErrUnknownAttribute, got %v", err)
	}
	if _, err := s.Build("alias", "like", "x"); !errors.Is(err, ErrUnknownOperator) {
		t.Fatalf("expected unknown operator, got %v", err)
	}
	p, err := s.Build("issuer", "startsWith", "CN")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.Operator != StartsWith {
		t.Fatalf("unexpected operator %s", p.Operator)
	}
}

func TestParseAndString(t *testing.T) {
	p, err := Parse(`displayName sw "admin team"`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Attribute != "displayName" || p.Operator != StartsWith || p.Value != "admin team" {
		t.Fatalf("unexpected predicate %+v", p)
	}
	if p.String() != `displayName sw "admin team"` {
		t.Fatalf("unexpected render %s", p.String())
	}
	p, err = Parse("alias co wso2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.String() != "alias co wso2" {
		t.Fatalf("unexpected render %s", p.String())
	}
	for _, bad := range []string{"", "alias", "alias co", "alias like x", `alias eq "open`} {
		if _, err := Parse(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestSearchUsesDefaultAttribute(t *testing.T) {
	s := certSchema()
	p := s.Search("  gam ")
	if p.Attribute != "alias" || p.Operator != Contains || p.Value != "gam" {
		t.Fatalf("unexpected search predicate %+v", p)
	}
}

func TestCompareTotalOrder(t *testing.T) {
	s := certSchema()
	a, b, c := cert{Alias: "apple"}, cert{Alias: "Banana"}, cert{Alias: "banana"}
	if s.Compare(a, b, "alias") >= 0 {
		t.Fatalf("apple should sort before Banana")
	}
	if s.Compare(b, c, "alias") == 0 {
		t.Fatalf("case variants must not tie")
	}
	if s.Compare(c, c, "alias") != 0 {
		t.Fatalf("identical values must tie")
	}
}

func TestLongOperatorNamesMatch(t *testing.T) {
	s := certSchema()
	gamma := cert{Alias: "gamma"}
	if !s.Matches(gamma, Predicate{Attribute: "alias", Operator: "contains", Value: "AM"}) {
		t.Fatalf("contains should match gamma")
	}
	if s.Matches(gamma, Predicate{Attribute: "alias", Operator: "like", Value: "am"}) {
		t.Fatalf("unknown operators never match")
	}
	p, err := s.Normalize(Predicate{Attribute: "alias", Operator: "notEquals", Value: "gamma"})
	if err != nil || p.Operator != NotEquals {
		t.Fatalf("unexpected normalized predicate %+v (%v)", p, err)
	}
}
