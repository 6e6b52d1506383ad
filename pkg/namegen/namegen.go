// Package namegen builds throwaway display names for guest users.
package namegen

import (
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

var firsts = []string{
	"neo", "orion", "zephyr", "luna", "nova", "raven", "echo", "astra", "apollo", "frost",
	"ember", "lumen", "soren", "kyra", "phoenix", "juno", "wren", "sky", "storm", "aurora",
	"zane", "valen", "rhea", "sierra", "titus", "mara", "orla", "julius", "amelia", "everett",
}

var lasts = []string{
	"shadow", "ember", "blade", "wolf", "phantom", "flame", "forge", "vanguard", "gale", "hawk",
	"drake", "stone", "thorn", "vortex", "cyclone", "fox", "cross", "moon", "dusk", "iron",
	"winter", "silver", "knight", "zenith", "quinn", "swift", "haze", "crowe", "fletcher", "walsh",
}

// Guest returns a name of the form "first-last-XXXX" where XXXX is four
// uppercase hex characters.
func Guest() string {
	suffix := strings.ToUpper(uuid.NewString()[:4])
	return firsts[rand.IntN(len(firsts))] + "-" + lasts[rand.IntN(len(lasts))] + "-" + suffix
}
