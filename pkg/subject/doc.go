// Package subject validates and matches broker subjects.
//
// Subjects are dot-separated tokens ("task.42.expiring"). Subscription patterns may use
// wildcards:
//   - "*" matches exactly one token: "task.*.expired" matches "task.42.expired"
//   - ">" matches one or more trailing tokens and must be the last token:
//     "task.42.>" matches "task.42.expiring" and "task.42.reminder.sent"
//
// Example usage:
//
//	pattern := subject.ForUser("task", userID) // "task.<userID>.>"
//	if err := subject.ValidatePattern(pattern); err != nil {
//		return err
//	}
//
//	if subject.Match(pattern, msg.Subject) {
//		deliver(msg)
//	}
//
// Routing by suffix (".expiring", ".expired") is the router's concern; this package only
// deals with the token grammar shared by the broker connection and the router.
package subject
