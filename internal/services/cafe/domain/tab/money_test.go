package tab

import "testing"

func TestMoneyString(t *testing.T) {
	cases := map[Money]string{
		0:    "0.00",
		150:  "1.50",
		1205: "12.05",
		-50:  "-0.50",
	}
	for value, want := range cases {
		if got := value.String(); got != want {
			t.Fatalf("Money(%d).String() = %q, want %q", int64(value), got, want)
		}
	}
}

func TestParseMoney(t *testing.T) {
	cases := map[string]Money{
		"7.50":  750,
		"7.5":   750,
		"12":    1200,
		" 0.05": 5,
		"-1.25": -125,
	}
	for raw, want := range cases {
		got, err := ParseMoney(raw)
		if err != nil {
			t.Fatalf("ParseMoney(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseMoney(%q) = %d, want %d", raw, got, want)
		}
	}
	for _, raw := range []string{"", "abc", "1.234", "1."} {
		if _, err := ParseMoney(raw); err == nil {
			t.Fatalf("ParseMoney(%q) expected error", raw)
		}
	}
}

func TestParseMoney_RejectsStraySigns(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{name: "double minus", raw: "--5"},
		{name: "plus prefix", raw: "+5"},
		{name: "plus in cents", raw: "1.+5"},
		{name: "minus in cents", raw: "1.-5"},
		{name: "bare minus", raw: "-"},
		{name: "missing units", raw: ".5"},
		{name: "inner space", raw: "1 .5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got, err := ParseMoney(tc.raw); err == nil {
				t.Fatalf("ParseMoney(%q) = %d, want error", tc.raw, got)
			}
		})
	}
}

func TestMoneyMajor(t *testing.T) {
	if got := Cents(750).Major(); got != 7.5 {
		t.Fatalf("major = %v, want 7.5", got)
	}
}
