package contract

import "testing"

func TestSaveLocationDisplayName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		loc  SaveLocation
		want string
	}{
		{
			name: "city and country",
			loc:  SaveLocation{CityName: "Rotterdam", CountryName: "NL"},
			want: "Rotterdam, NL",
		},
		{
			name: "city state and country",
			loc:  SaveLocation{CityName: "Rotterdam", StateName: "Zuid-Holland", CountryName: "NL"},
			want: "Rotterdam, Zuid-Holland, NL",
		},
		{
			name: "blank state is skipped",
			loc:  SaveLocation{CityName: "Lisbon", StateName: "   ", CountryName: "Portugal"},
			want: "Lisbon, Portugal",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.loc.DisplayName(); got != tc.want {
				t.Fatalf("DisplayName() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestInboundEventHasText(t *testing.T) {
	t.Parallel()

	if (InboundEvent{Body: "  "}).HasText() {
		t.Error("HasText() = true for whitespace body")
	}
	if !(InboundEvent{Body: "hi"}).HasText() {
		t.Error("HasText() = false for text body")
	}
}
