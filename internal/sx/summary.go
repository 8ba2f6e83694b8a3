package sx

// Summary counts the model's instances by what they need from the user.
type Summary struct {
	Instances  int
	ToCreate   int // pending creation on schedules without auto-create
	AutoCreate int // pending creation on auto-create schedules
	Reminders  int
	Postponed  int
}

// NeedsAttention reports whether anything beyond automatic creation is
// pending.
func (s Summary) NeedsAttention() bool {
	return s.Instances != 0 && s.AutoCreate != s.Instances
}

// Summarize counts the instances not yet created or ignored.
func (m *Model) Summarize() Summary {
	var sum Summary
	for _, g := range m.groups {
		for _, inst := range g.List {
			switch inst.State {
			case ToCreate:
				if g.Schedule.AutoCreate {
					sum.AutoCreate++
				} else {
					sum.ToCreate++
				}
			case Reminder:
				sum.Reminders++
			case Postponed:
				sum.Postponed++
			default:
				continue
			}
			sum.Instances++
		}
	}
	return sum
}
