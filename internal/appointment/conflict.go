package appointment

import "bytes"

// Overlaps reports whether two half-open ranges [aStart, aStart+aDur) and
// [bStart, bStart+bDur) intersect. Touching endpoints do not overlap.
func Overlaps(aStart Clock, aDur int, bStart Clock, bDur int) bool {
	return aStart < bStart+Clock(bDur) && bStart < aStart+Clock(aDur)
}

// HasConflict reports whether slot overlaps any live appointment for the same
// doctor and date in existing.
func HasConflict(slot Slot, existing []Appointment) bool {
	_, ok := FindConflict(slot, existing)
	return ok
}

// FindConflict returns the earliest-starting live appointment that overlaps
// slot, ties broken by id, so the answer is independent of the order of
// existing.
func FindConflict(slot Slot, existing []Appointment) (Appointment, bool) {
	var (
		found Appointment
		ok    bool
	)
	date := DateOf(slot.Date)

	for _, a := range existing {
		if a.Status == StatusCancelled || a.DoctorID != slot.DoctorID || !DateOf(a.Date).Equal(date) {
			continue
		}
		if !Overlaps(slot.Start, slot.DurationMinutes, a.Start, a.DurationMinutes) {
			continue
		}
		if !ok || earlier(a, found) {
			found, ok = a, true
		}
	}
	return found, ok
}

func earlier(a, b Appointment) bool {
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}
