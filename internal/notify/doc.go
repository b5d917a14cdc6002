// Package notify delivers allocation notifications to students through a
// Redis stream, an HTTP webhook or the process log. Every notifier satisfies
// application.Notifier.
package notify
