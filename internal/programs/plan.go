package programs

import (
	"fmt"
	"math"
)

// Plan is the generated week-by-week training document stored with a program.
type Plan struct {
	Goal          string       `json:"goal"`
	FitnessLevel  FitnessLevel `json:"fitness_level"`
	DurationWeeks int          `json:"duration_weeks"`
	Weeks         []PlanWeek   `json:"weeks"`
	Notes         string       `json:"notes"`
}

// PlanWeek is one week of the plan.
type PlanWeek struct {
	Number      int           `json:"week_number"`
	Focus       string        `json:"focus"`
	Workouts    []PlanWorkout `json:"workouts"`
	VolumeHours float64       `json:"weekly_volume_hours"`
	DistanceKm  float64       `json:"weekly_distance_km"`
}

// PlanWorkout is a single scheduled session.
type PlanWorkout struct {
	Day             string         `json:"day"`
	Sport           Sport          `json:"sport"`
	Title           string         `json:"title"`
	DurationMinutes int            `json:"total_duration_minutes"`
	DistanceKm      float64        `json:"total_distance_km"`
	Warmup          string         `json:"warmup"`
	MainSet         []PlanInterval `json:"main_set"`
	Cooldown        string         `json:"cooldown"`
}

// PlanInterval describes one block within a session's main set.
type PlanInterval struct {
	DurationMinutes int    `json:"duration_minutes"`
	Intensity       string `json:"intensity"`
	Description     string `json:"description"`
}

// Week focus labels, in rough seasonal order.
const (
	focusBase      = "Base Building"
	focusThreshold = "Threshold Work"
	focusPeak      = "Peak"
	focusRecovery  = "Recovery"
	focusRaceWeek  = "Race Week"
)

// disciplineSports lists the workout disciplines each sport type trains, in
// the order sessions rotate through them.
var disciplineSports = map[SportType][]Sport{
	SportTypeTriathlon: {SportSwim, SportBike, SportRun},
	SportTypeRunning:   {SportRun},
	SportTypeCycling:   {SportBike},
	SportTypeDuathlon:  {SportRun, SportBike},
	SportTypeAquathlon: {SportSwim, SportRun},
}

// paceKmPerHour gives the steady-state speed used to estimate session
// distances from durations.
var paceKmPerHour = map[Sport]float64{
	SportSwim: 3,
	SportBike: 28,
	SportRun:  10,
}

var sportNouns = map[Sport]string{
	SportSwim: "Swim",
	SportBike: "Ride",
	SportRun:  "Run",
}

// sessionDays maps a weekly session count to the training days used, ending
// with the weekend long session.
var sessionDays = map[int][]string{
	4: {"Tuesday", "Thursday", "Saturday", "Sunday"},
	5: {"Tuesday", "Wednesday", "Thursday", "Saturday", "Sunday"},
	6: {"Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"},
}

func sessionsPerWeek(level FitnessLevel) int {
	switch level {
	case FitnessBeginner:
		return 4
	case FitnessAdvanced:
		return 6
	default:
		return 5
	}
}

// buildPlan produces the deterministic plan scaffold for a validated request:
// volume ramps from 70% to 100% of the available hours across the block, every
// fourth week drops back for recovery, and the final week tapers into the race.
func buildPlan(input GenerateProgramInput) Plan {
	weeks := make([]PlanWeek, 0, input.DurationWeeks)
	for week := 1; week <= input.DurationWeeks; week++ {
		weeks = append(weeks, buildWeek(input, week))
	}

	notes := fmt.Sprintf(
		"%d-week %s %s plan toward %s. Volume builds progressively with a recovery week every fourth week and a taper in the final week.",
		input.DurationWeeks, input.FitnessLevel, input.SportType, input.Goal)

	return Plan{
		Goal:          input.Goal,
		FitnessLevel:  input.FitnessLevel,
		DurationWeeks: input.DurationWeeks,
		Weeks:         weeks,
		Notes:         notes,
	}
}

func buildWeek(input GenerateProgramInput, week int) PlanWeek {
	focus := weekFocus(week, input.DurationWeeks)
	volume := weekVolumeHours(week, input.DurationWeeks, input.HoursPerWeek)

	sports := disciplineSports[input.SportType]
	days := sessionDays[sessionsPerWeek(input.FitnessLevel)]

	totalMinutes := int(math.Round(volume * 60))
	workouts := make([]PlanWorkout, 0, len(days))
	allocated := 0
	var weekDistance float64
	for i, day := range days {
		// The closing long session gets a 1.5x share and absorbs the
		// rounding remainder so the week sums exactly.
		minutes := totalMinutes * 2 / (2*len(days) + 1)
		if i == len(days)-1 {
			minutes = totalMinutes - allocated
		}
		allocated += minutes

		workout := buildWorkout(sports[i%len(sports)], day, minutes, focus, i, i == len(days)-1)
		weekDistance += workout.DistanceKm
		workouts = append(workouts, workout)
	}

	return PlanWeek{
		Number:      week,
		Focus:       focus,
		Workouts:    workouts,
		VolumeHours: volume,
		DistanceKm:  round1(weekDistance),
	}
}

func weekFocus(week, total int) string {
	switch {
	case week == total:
		return focusRaceWeek
	case week%4 == 0:
		return focusRecovery
	case week <= total/2:
		return focusBase
	case week <= total*3/4:
		return focusThreshold
	default:
		return focusPeak
	}
}

func weekVolumeHours(week, total, hoursPerWeek int) float64 {
	ramp := 0.7
	if total > 1 {
		ramp += 0.3 * float64(week-1) / float64(total-1)
	}
	switch {
	case week == total:
		ramp *= 0.5
	case week%4 == 0:
		ramp *= 0.7
	}
	return round1(float64(hoursPerWeek) * ramp)
}

func buildWorkout(sport Sport, day string, minutes int, focus string, session int, long bool) PlanWorkout {
	intensity, description := sessionIntensity(focus, session, long)

	warmup := 10
	if minutes < 45 {
		warmup = 5
	}
	main := minutes - warmup - 5

	return PlanWorkout{
		Day:             day,
		Sport:           sport,
		Title:           sessionTitle(sport, intensity, long),
		DurationMinutes: minutes,
		DistanceKm:      round1(paceKmPerHour[sport] * float64(minutes) / 60),
		Warmup:          fmt.Sprintf("%d min easy", warmup),
		MainSet: []PlanInterval{{
			DurationMinutes: main,
			Intensity:       intensity,
			Description:     description,
		}},
		Cooldown: "5 min easy",
	}
}

func sessionIntensity(focus string, session int, long bool) (string, string) {
	switch focus {
	case focusRecovery:
		return "Recovery", "Short and easy, focus on form"
	case focusRaceWeek:
		return "Easy", "Light openers, stay fresh for race day"
	}
	if long {
		return "Zone 2", "Long steady aerobic effort"
	}
	if (focus == focusThreshold || focus == focusPeak) && session%2 == 1 {
		return "Threshold", "3 x 8 min at threshold with 3 min easy between"
	}
	return "Zone 2", "Steady aerobic effort"
}

func sessionTitle(sport Sport, intensity string, long bool) string {
	noun := sportNouns[sport]
	switch {
	case intensity == "Recovery" || intensity == "Easy":
		return "Easy " + noun
	case long:
		return "Long " + noun
	case intensity == "Threshold":
		return "Threshold " + noun
	default:
		return "Endurance " + noun
	}
}

func round1(value float64) float64 {
	return math.Round(value*10) / 10
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
