package scheduler

// Common schedule patterns offered to the dashboard.
const (
	EveryMinute = "* * * * *"

	EveryHour     = "0 * * * *"
	Every2Hours   = "0 */2 * * *"
	Every6Hours   = "0 */6 * * *"
	Every12Hours  = "0 */12 * * *"
	Daily9AM      = "0 9 * * *"
	Daily6PM      = "0 18 * * *"
	DailyMidnight = "0 0 * * *"

	WeeklyMonday9AM = "0 9 * * 1"
	WeeklyFriday5PM = "0 17 * * 5"

	MonthlyFirst9AM = "0 9 1 * *"
	Monthly15th6PM  = "0 18 15 * *"
)

// Patterns maps display names to patterns.
var Patterns = map[string]string{
	"EVERY_MINUTE":      EveryMinute,
	"EVERY_HOUR":        EveryHour,
	"EVERY_2_HOURS":     Every2Hours,
	"EVERY_6_HOURS":     Every6Hours,
	"EVERY_12_HOURS":    Every12Hours,
	"DAILY_9AM":         Daily9AM,
	"DAILY_6PM":         Daily6PM,
	"DAILY_MIDNIGHT":    DailyMidnight,
	"WEEKLY_MONDAY_9AM": WeeklyMonday9AM,
	"WEEKLY_FRIDAY_5PM": WeeklyFriday5PM,
	"MONTHLY_FIRST_9AM": MonthlyFirst9AM,
	"MONTHLY_15TH_6PM":  Monthly15th6PM,
}
