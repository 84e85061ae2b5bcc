package synthetic

import "math/rand"

var maleNames = []string{"James", "John", "Robert", "Michael", "William", "David", "Richard", "Joseph", "Thomas", "Charles"}

var femaleNames = []string{"Mary", "Patricia", "Jennifer", "Linda", "Elizabeth", "Barbara", "Susan", "Jessica", "Sarah", "Karen"}

var familyNames = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Rodriguez", "Martinez"}

type place struct {
	state  string
	cities []string
}

var places = []place{
	{state: "Massachusetts", cities: []string{"Boston", "Worcester", "Springfield", "Cambridge"}},
	{state: "California", cities: []string{"Los Angeles", "San Diego", "San Jose", "Sacramento"}},
	{state: "Texas", cities: []string{"Houston", "San Antonio", "Dallas", "Austin"}},
	{state: "Utah", cities: []string{"Salt Lake City", "Provo", "Ogden"}},
}

// citiesOf picks a city of state, or returns the empty string for a state without known cities.
func citiesOf(state string, rng *rand.Rand) string {
	for _, p := range places {
		if p.state == state {
			return p.cities[rng.Intn(len(p.cities))]
		}
	}
	return ""
}
