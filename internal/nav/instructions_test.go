package nav

import "testing"

func TestNormalizeInstruction(t *testing.T) {
	cases := map[string]string{
		"Head north on Main Road":             "Start walking",
		"Turn left onto Library Lane":         "Turn left",
		"Turn right onto Straight Street":     "Turn right",
		"Continue on College Road for 120 m":  "Continue straight",
		"Go straight for 45.5 m":              "Continue straight",
		"Take the exit":                       "Exit the traffic circle",
		"You have arrived at your destination": "You have arrived at your destination",
		"Arrived":                             "You have arrived at your destination",
		"Walk past the fountain for 30 m":     "Walk past the fountain",
		"Enter the roundabout":                "Enter the roundabout",
	}
	for in, want := range cases {
		if got := NormalizeInstruction(in); got != want {
			t.Errorf("NormalizeInstruction(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeInstructionPrecedence(t *testing.T) {
	// left wins over continue and head
	if got := NormalizeInstruction("Head left and continue"); got != "Turn left" {
		t.Fatalf("got %q", got)
	}
	// words containing a keyword do not match
	if got := NormalizeInstruction("Pass the headquarters"); got != "Pass the headquarters" {
		t.Fatalf("got %q", got)
	}
}
