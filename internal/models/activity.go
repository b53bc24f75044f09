package models

import "fmt"

// ActivityType тип активности маршрута (коды совместимы с сохраненными файлами)
type ActivityType uint

const (
	ActivityCycling            ActivityType = 13
	ActivityEquestrianSports   ActivityType = 17
	ActivityGolf               ActivityType = 21
	ActivityHiking             ActivityType = 24
	ActivityHunting            ActivityType = 26
	ActivityPaddling           ActivityType = 31
	ActivityRowing             ActivityType = 35
	ActivityRunning            ActivityType = 37
	ActivitySailing            ActivityType = 38
	ActivitySnowSports         ActivityType = 40
	ActivitySurfingSports      ActivityType = 45
	ActivitySwimming           ActivityType = 46
	ActivityWalking            ActivityType = 52
	ActivityCrossCountrySkiing ActivityType = 60
	ActivityDownhillSkiing     ActivityType = 61
	ActivitySnowboarding       ActivityType = 67
	ActivityWheelchairWalkPace ActivityType = 70
	ActivityWheelchairRunPace  ActivityType = 71
	ActivityHandCycling        ActivityType = 74
	ActivitySwimBikeRun        ActivityType = 82
	ActivityOther              ActivityType = 3000
	ActivityMotorcycling       ActivityType = 5000
	ActivityFlying             ActivityType = 5001
)

var activityNames = map[ActivityType]string{
	ActivityCycling:            "Cycling",
	ActivityEquestrianSports:   "Equestrian Sports",
	ActivityGolf:               "Golf",
	ActivityHiking:             "Hiking",
	ActivityHunting:            "Hunting",
	ActivityPaddling:           "Paddling",
	ActivityRowing:             "Rowing",
	ActivityRunning:            "Running",
	ActivitySailing:            "Sailing",
	ActivitySnowSports:         "Snow Sports",
	ActivitySurfingSports:      "Surfing Sports",
	ActivitySwimming:           "Swimming",
	ActivityWalking:            "Walking",
	ActivityCrossCountrySkiing: "Cross Country Skiing",
	ActivityDownhillSkiing:     "Downhill Skiing",
	ActivitySnowboarding:       "Snowboarding",
	ActivityWheelchairWalkPace: "Wheelchair Walk Pace",
	ActivityWheelchairRunPace:  "Wheelchair Run Pace",
	ActivityHandCycling:        "Hand Cycling",
	ActivitySwimBikeRun:        "Triathlon",
	ActivityOther:              "Other",
	ActivityMotorcycling:       "Motorcycling",
	ActivityFlying:             "Flying",
}

// IsValid известен ли код активности
func (a ActivityType) IsValid() bool {
	_, ok := activityNames[a]
	return ok
}

// String возвращает название активности
func (a ActivityType) String() string {
	if name, ok := activityNames[a]; ok {
		return name
	}
	return fmt.Sprintf("ActivityType(%d)", uint(a))
}

// ClassifyActivity определяет тип активности по средней и максимальной скорости (км/ч)
func ClassifyActivity(avgSpeed, maxSpeed float64) ActivityType {
	in := func(v, lo, hi float64) bool { return v >= lo && v < hi }

	switch {
	case in(avgSpeed, 1, 6) && in(maxSpeed, 1, 14):
		return ActivityWalking
	case in(avgSpeed, 6, 14) && in(maxSpeed, 6, 20):
		return ActivityRunning
	case in(avgSpeed, 14, 40) && in(maxSpeed, 14, 40):
		return ActivityCycling
	case in(avgSpeed, 1, 180) && in(maxSpeed, 40, 180):
		return ActivityMotorcycling
	case avgSpeed >= 180:
		return ActivityFlying
	default:
		return ActivityOther
	}
}
