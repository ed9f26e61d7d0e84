package models

// Student is one roster entry for a course. Roster order is full name, then id.
type Student struct {
	ID       string `db:"id" json:"id"`
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
}

// Check validates a roster row read from the remote store.
func (s Student) Check() error {
	if s.ID == "" {
		return errMissingStudentID
	}
	return nil
}
