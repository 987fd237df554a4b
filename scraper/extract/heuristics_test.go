package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{"250 000 DT", 250000},
		{"1.200.000 TND", 1200000},
		{"Prix: 95", 95},
		{"1 200,50 DT", 1200},
		{"12 500 DT / mois", 12500},
		{"285000", 285000},
		{"sur demande", 0},
		{"", 0},
	}

	for _, tt := range tests {
		if got := NormalizePrice(tt.raw); got != tt.want {
			t.Errorf("NormalizePrice(%q) = %d; want %d", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizePriceNeverNegative(t *testing.T) {
	for _, raw := range []string{"-500 DT", "prix -", "--", "0"} {
		assert.GreaterOrEqual(t, NormalizePrice(raw), int64(0), raw)
	}
}

func TestPriceFromText(t *testing.T) {
	got, ok := PriceFromText("Appartement à vendre au prix de 320 000 DT négociable")
	assert.True(t, ok)
	assert.Equal(t, "320 000 DT", got)

	_, ok = PriceFromText("Prix sur demande")
	assert.False(t, ok)
}

func TestInferRooms(t *testing.T) {
	tests := []struct {
		text string
		want RoomInfo
		ok   bool
	}{
		{"Appartement S+3 Tunis", RoomInfo{Rooms: 4, Bedrooms: 3}, true},
		{"Appartement s + 1 meublé", RoomInfo{Rooms: 2, Bedrooms: 1}, true},
		{"Appartement S2 à louer", RoomInfo{Rooms: 3, Bedrooms: 2}, true},
		{"S+0 haut standing", RoomInfo{Rooms: 1, Bedrooms: 1}, true},
		{"Studio meublé", RoomInfo{Rooms: 1, Bedrooms: 1}, true},
		{"Villa 5 pièces avec jardin", RoomInfo{Rooms: 5}, true},
		{"Maison 3 chambres", RoomInfo{Rooms: 3}, true},
		{"Appartement T3 centre ville", RoomInfo{Rooms: 3}, true},
		{"Duplex F4", RoomInfo{Rooms: 4}, true},
		{"Terrain agricole Sousse", RoomInfo{}, false},
	}

	for _, tt := range tests {
		got, ok := InferRooms(tt.text)
		if ok != tt.ok || got != tt.want {
			t.Errorf("InferRooms(%q) = %+v, %v; want %+v, %v", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestInferRoomsFirstRuleWins(t *testing.T) {
	got, ok := InferRooms("Studio transformé en S+2, 3 pièces")
	assert.True(t, ok)
	assert.Equal(t, RoomInfo{Rooms: 3, Bedrooms: 2}, got)
}

func TestDefaultBedrooms(t *testing.T) {
	assert.Equal(t, RoomInfo{Rooms: 4, Bedrooms: 3}, RoomInfo{Rooms: 4}.DefaultBedrooms())
	assert.Equal(t, RoomInfo{Rooms: 1}, RoomInfo{Rooms: 1}.DefaultBedrooms())
	assert.Equal(t, RoomInfo{Rooms: 4, Bedrooms: 2}, RoomInfo{Rooms: 4, Bedrooms: 2}.DefaultBedrooms())
}

func TestSurfaceAndBathrooms(t *testing.T) {
	s, ok := SurfaceFromText("Surface 120 m² habitable")
	assert.True(t, ok)
	assert.Equal(t, 120.0, s)

	s, ok = SurfaceFromText("terrain de 450,5 m2")
	assert.True(t, ok)
	assert.Equal(t, 450.5, s)

	b, ok := BathroomsFromText("deux chambres et 2 salles de bain")
	assert.True(t, ok)
	assert.Equal(t, 2, b)

	_, ok = BathroomsFromText("cuisine équipée")
	assert.False(t, ok)
}
