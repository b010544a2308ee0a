package rules

// DefaultRulesYAML returns a commented starter rule file.
func DefaultRulesYAML() string {
	return `# aegis detection rules
#
# Each rule narrows by match (empty list = any value), then evaluates its
# conditions. Named thresholds:
#   between_hours: [start, end]    hour of the event timestamp (UTC), wraps midnight when start > end
#   failed_logins_gte: N           risk_context.failed_logins >= N
#   records_accessed_gt: N         risk_context.records_accessed > N
#   data_volume_mb_gt: N           risk_context.data_volume_mb > N
#   resource_regex: PATTERN        resource matches PATTERN (case-insensitive)
#   source_ip_not_regex: PATTERN   source_ip does not match PATTERN
#   checks: [{field, op, value}]   ops: equals, in, in_set, gt, gte, regex, not_regex, between_hours
#   logic: AND | OR                how the conditions combine (default AND)
#
# risk_score for an event is min(100, sum of matched rules' risk_points).

rules:
  - id: R-001
    name: After-hours failed login
    description: Failed login outside business hours
    match:
      actions: [login]
      status: [failed]
    conditions:
      between_hours: [22, 6]
      logic: AND
    severity: medium
    risk_points: 30
    remediation:
      - Verify the login attempt with the account owner
      - Review source IP reputation

  - id: R-002
    name: Repeated failed logins
    description: Several failed logins in a short window
    match:
      actions: [login]
    conditions:
      failed_logins_gte: 5
    severity: high
    risk_points: 40
    remediation:
      - Lock the account pending review

  - id: R-003
    name: Bulk access to restricted records
    description: Large read of restricted HR or crew records
    match:
      actions: [data_access, file_download, export]
    conditions:
      records_accessed_gt: 500
      resource_regex: "(hr|payroll|crew|restricted)"
      logic: AND
    severity: high
    risk_points: 50
    remediation:
      - Notify line manager
      - Quarantine or reverse action if possible

  - id: R-004
    name: Access from outside corporate network
    description: Sensitive system accessed from an unknown network
    match:
      systems: [HRIS, Payroll]
    conditions:
      source_ip_not_regex: "^10\\."
    severity: medium
    risk_points: 20
    remediation:
      - Confirm travel or remote work with the user
`
}
