// Package incident is the business boundary for alarm-triggered incident
// reports. It defines the Pipeline (one invocation: context gathering,
// summary, persistence, remediation), the Service (invocation lifecycle,
// history, notification), the Store interface, and the domain models.
package incident
