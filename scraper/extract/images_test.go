package extract

import "testing"

func TestExcludedMatchesWholeWords(t *testing.T) {
	keywords := []string{"logo", "icon", "avatar", "marker", "sprite", "placeholder", "pin", ".svg"}

	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.x.tn/static/map-pin.png", true},
		{"https://cdn.x.tn/static/pins/blue.png", true},
		{"https://cdn.x.tn/static/site_logo.png", true},
		{"https://cdn.x.tn/icons/phone.png", true},
		{"https://cdn.x.tn/static/arrow.svg", true},
		{"https://cdn.x.tn/uploads/avatar123.jpg", true},
		{"https://cdn.x.tn/uploads/shopping-center.jpg", false},
		{"https://cdn.x.tn/uploads/camping.jpg", false},
		{"https://cdn.x.tn/uploads/spinner-room.jpg", false},
		{"https://cdn.x.tn/uploads/villa-pinede.jpg", false},
		{"https://cdn.x.tn/uploads/silicone.jpg", false},
	}
	for _, tt := range tests {
		if got := excluded(tt.url, keywords); got != tt.want {
			t.Errorf("excluded(%q) = %v; want %v", tt.url, got, tt.want)
		}
	}
}
