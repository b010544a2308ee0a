package llm

import (
	"context"
	"fmt"
	"strings"
)

const authorSystemPrompt = `You write detection rules for an access-log anomaly scorer.
Return ONLY one YAML mapping, no markdown fences, no commentary, with exactly these keys:

id: string (leave empty to have one assigned)
name: string
description: string
match: {actions: [string], roles: [string], systems: [string], locations: [string], status: [string]}
conditions: {between_hours: [start, end], failed_logins_gte: int, records_accessed_gt: int, data_volume_mb_gt: number, resource_regex: string, source_ip_not_regex: string, logic: AND|OR}
severity: low|medium|high|critical
risk_points: integer >= 0
remediation: [string]

Omit match lists and conditions that the requirement does not need.`

// Author drafts rule YAML from a natural-language requirement.
type Author struct {
	client Client
}

// NewAuthor creates an author on client.
func NewAuthor(client Client) *Author {
	return &Author{client: client}
}

// Draft returns the model's YAML for requirement, as produced. Fence
// stripping and validation are left to the rules package.
func (a *Author) Draft(ctx context.Context, requirement string) (string, error) {
	requirement = strings.TrimSpace(requirement)
	if requirement == "" {
		return "", fmt.Errorf("draft rule: requirement is empty")
	}
	out, err := a.client.Complete(ctx, []Message{
		{Role: RoleSystem, Content: authorSystemPrompt},
		{Role: RoleUser, Content: requirement},
	})
	if err != nil {
		return "", fmt.Errorf("draft rule: %w", err)
	}
	return out, nil
}
