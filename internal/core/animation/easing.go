package animation

// Easing maps linear progress in [0, 1] to eased progress in [0, 1].
type Easing func(t float64) float64

func Linear(t float64) float64 { return t }

func EaseIn(t float64) float64 { return t * t }

func EaseOut(t float64) float64 { return 1 - (1-t)*(1-t) }

func EaseInOut(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return 1 - 2*(1-t)*(1-t)
}

// Lerp interpolates between from and to.
func Lerp(from, to, progress float64) float64 {
	return from + (to-from)*progress
}
