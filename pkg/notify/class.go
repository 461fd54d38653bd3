package notify

// Class holds the visual classes of a rendered notification
type Class struct {
	// Root is applied to the notification element
	Root string
	// Details is applied to the collapsible details block
	Details string
	// Accent names the palette color of the severity
	Accent string
}

var classes = map[Severity]Class{
	SeverityInfo: {
		Root:    "text-bg-primary",
		Details: "bg-primary-subtle text-primary-emphasis",
		Accent:  "primary",
	},
	SeverityWarning: {
		Root:    "text-bg-warning",
		Details: "bg-warning-subtle text-warning-emphasis",
		Accent:  "warning",
	},
	SeverityError: {
		Root:    "text-bg-danger",
		Details: "bg-danger-subtle text-danger-emphasis",
		Accent:  "danger",
	},
}

// ClassFor maps a severity to its classes. Unknown severities use the info classes.
func ClassFor(s Severity) Class {
	if c, ok := classes[s]; ok {
		return c
	}
	return classes[SeverityInfo]
}
