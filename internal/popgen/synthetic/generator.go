// Package synthetic is a small seeded generator of fictional person records. It stands in for a real
// population simulator so the service can be run end to end.
package synthetic

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/G-Research/popgen/internal/common/popgenerrors"
	"github.com/G-Research/popgen/internal/common/util"
	"github.com/G-Research/popgen/internal/popgen/artifact"
	"github.com/G-Research/popgen/internal/popgen/request"
)

// PatientsFile is the table written for csv requests.
const PatientsFile = "patients.csv"

var patientsHeader = []string{"Id", "BIRTHDATE", "FIRST", "LAST", "GENDER", "AGE", "STATE", "CITY"}

type Person struct {
	Id        string `json:"id"`
	Given     string `json:"given"`
	Family    string `json:"family"`
	Gender    string `json:"gender"`
	BirthDate string `json:"birthDate"`
	Age       int    `json:"age"`
	State     string `json:"state"`
	City      string `json:"city"`
}

// Generator implements request.Generator.
type Generator struct {
	// Clock fixes "today" for age calculations. Defaults to the wall clock.
	Clock util.Clock
	// RecordDelay simulates the cost of generating a record.
	RecordDelay time.Duration
}

func (g *Generator) Configure(_ context.Context, config request.Configuration, workspace request.Workspace) (request.Producer, error) {
	var clock util.Clock = &util.DefaultClock{}
	if g.Clock != nil {
		clock = g.Clock
	}
	p := &producer{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
		today:  clock.Now().UTC(),
		delay:  g.RecordDelay,
	}
	if config.OutputKind == artifact.KindCSV {
		if workspace.TableDir == "" {
			return nil, errors.New("csv output requires a table directory")
		}
		if err := p.openTable(workspace.TableDir); err != nil {
			return nil, err
		}
	}
	return p, nil
}

type producer struct {
	config request.Configuration
	rng    *rand.Rand
	today  time.Time
	delay  time.Duration

	table     *os.File
	tableRows *csv.Writer
}

func (p *producer) openTable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &popgenerrors.ErrArtifactIO{Path: dir, Err: errors.WithStack(err)}
	}
	path := filepath.Join(dir, PatientsFile)
	f, err := os.Create(path)
	if err != nil {
		return &popgenerrors.ErrArtifactIO{Path: path, Err: errors.WithStack(err)}
	}
	p.table = f
	p.tableRows = csv.NewWriter(f)
	if err := p.tableRows.Write(patientsHeader); err != nil {
		_ = f.Close()
		return &popgenerrors.ErrArtifactIO{Path: path, Err: errors.WithStack(err)}
	}
	return nil
}

func (p *producer) Next(ctx context.Context) (string, error) {
	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", popgenerrors.ErrInterrupted
		}
	}
	if ctx.Err() != nil {
		return "", popgenerrors.ErrInterrupted
	}

	person, err := p.person()
	if err != nil {
		return "", err
	}
	if p.tableRows != nil {
		row := []string{
			person.Id, person.BirthDate, person.Given, person.Family,
			person.Gender, strconv.Itoa(person.Age), person.State, person.City,
		}
		if err := p.tableRows.Write(row); err != nil {
			return "", &popgenerrors.ErrArtifactIO{Path: p.table.Name(), Err: errors.WithStack(err)}
		}
	}
	record, err := json.Marshal(person)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return string(record), nil
}

func (p *producer) person() (*Person, error) {
	id, err := uuid.NewRandomFromReader(p.rng)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	gender := p.config.Gender
	if gender == "" {
		gender = [...]string{"M", "F"}[p.rng.Intn(2)]
	}
	given := maleNames
	if gender == "F" {
		given = femaleNames
	}

	age := p.config.MinAge + p.rng.Intn(p.config.MaxAge-p.config.MinAge+1)
	// Birthday falls somewhere in the year before the age-th anniversary.
	birth := p.today.AddDate(-age-1, 0, 1+p.rng.Intn(365))
	if birth.After(p.today) {
		birth = p.today
	}

	state, city := p.config.State, p.config.City
	if state == "" {
		place := places[p.rng.Intn(len(places))]
		state = place.state
		if city == "" {
			city = place.cities[p.rng.Intn(len(place.cities))]
		}
	} else if city == "" {
		city = citiesOf(state, p.rng)
	}

	return &Person{
		Id:        id.String(),
		Given:     given[p.rng.Intn(len(given))],
		Family:    familyNames[p.rng.Intn(len(familyNames))],
		Gender:    gender,
		BirthDate: birth.Format("2006-01-02"),
		Age:       age,
		State:     state,
		City:      city,
	}, nil
}

// Close flushes the csv table, if any.
func (p *producer) Close() error {
	if p.tableRows == nil {
		return nil
	}
	p.tableRows.Flush()
	err := p.tableRows.Error()
	if closeErr := p.table.Close(); err == nil {
		err = closeErr
	}
	p.tableRows = nil
	if err != nil {
		return &popgenerrors.ErrArtifactIO{Path: p.table.Name(), Err: errors.WithStack(err)}
	}
	return nil
}
