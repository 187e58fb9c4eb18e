package types

// Tags represents instance tags as a structured type
// No maps! Everything is explicit
type Tags struct {
	// Skiff management tags
	SkiffManaged bool   `json:"skiff_managed,omitempty"`
	SkiffOpID    string `json:"skiff_op_id,omitempty"`

	// Standard infrastructure tags
	Name        string `json:"name,omitempty"`
	Environment string `json:"environment,omitempty"`
	Team        string `json:"team,omitempty"`
	Project     string `json:"project,omitempty"`
	CreatedBy   string `json:"created_by,omitempty"`
}

// IsManaged checks if the instance was provisioned by skiff
func (t Tags) IsManaged() bool {
	return t.SkiffManaged
}

// ToMap converts structured tags to a map for the AWS APIs
func (t Tags) ToMap() map[string]string {
	tags := make(map[string]string)

	if t.SkiffManaged {
		tags["skiff:managed"] = "true"
	}
	if t.SkiffOpID != "" {
		tags["skiff:op-id"] = t.SkiffOpID
	}
	if t.Name != "" {
		tags["Name"] = t.Name
	}
	if t.Environment != "" {
		tags["Environment"] = t.Environment
	}
	if t.Team != "" {
		tags["Team"] = t.Team
	}
	if t.Project != "" {
		tags["Project"] = t.Project
	}
	if t.CreatedBy != "" {
		tags["CreatedBy"] = t.CreatedBy
	}

	return tags
}

// TagsFromMap creates structured tags from the map shape the AWS APIs return
func TagsFromMap(tagMap map[string]string) Tags {
	tags := Tags{}

	if val, ok := tagMap["skiff:managed"]; ok && val == "true" {
		tags.SkiffManaged = true
	}
	if val, ok := tagMap["skiff:op-id"]; ok {
		tags.SkiffOpID = val
	}
	if val, ok := tagMap["Name"]; ok {
		tags.Name = val
	}
	if val, ok := tagMap["Environment"]; ok {
		tags.Environment = val
	}
	if val, ok := tagMap["Team"]; ok {
		tags.Team = val
	}
	if val, ok := tagMap["Project"]; ok {
		tags.Project = val
	}
	if val, ok := tagMap["CreatedBy"]; ok {
		tags.CreatedBy = val
	}

	return tags
}
