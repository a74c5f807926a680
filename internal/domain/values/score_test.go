package values

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		name     string
		num, den int
		want     int
	}{
		{"zero denominator", 5, 0, 0},
		{"exact", 5, 20, 25},
		{"rounds down", 5, 15, 33},
		{"rounds half up", 1, 8, 13},
		{"two thirds", 2, 3, 67},
		{"full", 20, 20, 100},
		{"empty numerator", 0, 7, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Percent(tt.num, tt.den))
		})
	}
}

func TestComposite(t *testing.T) {
	// 25*0.4 + 33*0.3 + 10*0.3 = 22.9
	got := Composite(Weighted(25, "0.4"), Weighted(33, "0.3"), Weighted(10, "0.3"))
	assert.Equal(t, 23, got)

	// 0.5 boundaries round up
	assert.Equal(t, 3, Composite(Weighted(5, "0.5")))

	// negative weights are allowed before clamping
	assert.Equal(t, -10, Composite(Weighted(50, "-0.2")))
}

func TestScore_Clamps(t *testing.T) {
	assert.Equal(t, 0, Score(Weighted(50, "-0.2")))
	assert.Equal(t, 100, Score(Weighted(100, "0.9"), Weighted(100, "0.9")))
	assert.Equal(t, 40, Score(Weighted(100, "0.4")))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp(-3, 0, 100))
	assert.Equal(t, 100, Clamp(140, 0, 100))
	assert.Equal(t, 42, Clamp(42, 0, 100))
}

func TestHours(t *testing.T) {
	assert.Equal(t, 8.0, Hours(8*time.Hour))
	assert.Equal(t, 7.5, Hours(7*time.Hour+30*time.Minute))
	assert.Equal(t, 0.33, Hours(20*time.Minute))
	assert.Equal(t, 0.0, Hours(0))
}

func TestWeighted_String(t *testing.T) {
	assert.Equal(t, "25*0.4", Weighted(25, "0.4").String())
}
