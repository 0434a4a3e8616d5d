package machine

import (
	"time"

	"smarttodo/internal/taskstore"
)

const dateLayout = "2006-01-02"

// normalizeAttrs converts staged attributes into store fields. Date strings
// that fail ISO parsing are dropped rather than rejected: the LLM sometimes
// produces junk dates and a staged batch should not die on them at commit
// time.
func normalizeAttrs(attrs Attrs) taskstore.Fields {
	return taskstore.Fields{
		Title:           attrs.Title,
		Description:     attrs.Description,
		Notes:           attrs.Notes,
		Status:          attrs.Status,
		Urgency:         attrs.Urgency,
		DueDate:         normalizeDate(attrs.DueDate),
		DeferredUntil:   normalizeDate(attrs.DeferredUntil),
		Recurrence:      attrs.Recurrence,
		AssigneeID:      attrs.AssigneeID,
		AssignedGroupID: attrs.AssignedGroupID,
		PrerequisiteIDs: attrs.PrerequisiteIDs,
	}
}

func normalizeDate(raw *string) *string {
	if raw == nil {
		return nil
	}
	if *raw == "" {
		empty := ""
		return &empty
	}
	if _, err := time.Parse(dateLayout, *raw); err != nil {
		return nil
	}
	return raw
}
