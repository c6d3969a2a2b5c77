// Package intel turns a raw ai.Finding into the two machine-consumable
// artefacts persisted alongside it: a STIX 2.1 bundle and structured
// remediation guidance (spec §4.9). Neither does I/O or keeps state. The
// guidance is fully determined by the finding's content; so are the bundle's
// shape and content fields, while its object ids are fresh random UUIDs and
// its timestamps are the build time.
package intel

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sentryhound/sentryhound/pkg/ai"
)

const stixSpecVersion = "2.1"

// stixObject is the loosely-typed shape every STIX SDO/SRO in the bundle
// takes. A concrete struct per object type would fight the spec's mix of
// optional fields (attack-pattern has no "pattern", relationship has no
// "name") more than it would help, so the bundle is built as plain maps
// the same way the original constructs plain dicts.
type stixObject map[string]any

// Bundle is a STIX 2.1 bundle: one indicator, one attack-pattern per MITRE
// technique, one "indicates" relationship per technique, and a report tying
// them together.
type Bundle struct {
	Type        string       `json:"type"`
	ID          string       `json:"id"`
	SpecVersion string       `json:"spec_version"`
	Objects     []stixObject `json:"objects"`
}

// BuildSTIXBundle constructs a deterministic-shape STIX bundle from finding
// (spec §4.9), grounded on the original's build_stix_bundle.
func BuildSTIXBundle(finding ai.Finding) Bundle {
	bundleID := fmt.Sprintf("bundle--%s", uuid.New())
	indicatorID := fmt.Sprintf("indicator--%s", uuid.New())
	reportID := fmt.Sprintf("report--%s", uuid.New())
	now := nowSTIX()

	var objects []stixObject

	indicator := stixObject{
		"type":            "indicator",
		"spec_version":    stixSpecVersion,
		"id":              indicatorID,
		"created":         now,
		"modified":        now,
		"name":            finding.Title,
		"description":     finding.Description,
		"indicator_types": []string{"malicious-activity"},
		"pattern":         indicatorPattern(finding.Indicators),
		"pattern_type":    "stix",
		"valid_from":      now,
		"confidence":      int(finding.Confidence * 100),
		"labels":          finding.TechniqueIDs,
	}
	objects = append(objects, indicator)

	var attackPatternIDs []string
	for _, techniqueID := range finding.TechniqueIDs {
		apID := fmt.Sprintf("attack-pattern--%s", uuid.New())
		attackPatternIDs = append(attackPatternIDs, apID)
		objects = append(objects, stixObject{
			"type":         "attack-pattern",
			"spec_version": stixSpecVersion,
			"id":           apID,
			"created":      now,
			"modified":     now,
			"name":         techniqueID,
			"external_references": []stixObject{{
				"source_name": "mitre-attack",
				"external_id": techniqueID,
				"url":         "https://attack.mitre.org/techniques/" + strings.ReplaceAll(techniqueID, ".", "/"),
			}},
		})
	}

	for _, apID := range attackPatternIDs {
		objects = append(objects, stixObject{
			"type":              "relationship",
			"spec_version":      stixSpecVersion,
			"id":                fmt.Sprintf("relationship--%s", uuid.New()),
			"created":           now,
			"modified":          now,
			"relationship_type": "indicates",
			"source_ref":        indicatorID,
			"target_ref":        apID,
		})
	}

	objectRefs := make([]string, 0, len(objects)+1)
	for _, obj := range objects {
		objectRefs = append(objectRefs, obj["id"].(string))
	}

	objects = append(objects, stixObject{
		"type":         "report",
		"spec_version": stixSpecVersion,
		"id":           reportID,
		"created":      now,
		"modified":     now,
		"name":         finding.Title,
		"description":  finding.Description,
		"published":    now,
		"report_types": []string{"threat-report"},
		"object_refs":  objectRefs,
		"confidence":   int(finding.Confidence * 100),
		"labels":       []string{finding.Severity},
	})

	return Bundle{
		Type:        "bundle",
		ID:          bundleID,
		SpecVersion: stixSpecVersion,
		Objects:     objects,
	}
}

// indicatorPattern synthesizes a STIX pattern from finding's indicators,
// joining multiple IOCs with OR. Falls back to a placeholder pattern when
// the finding carries no recognised indicator, since "pattern" is required
// on every STIX indicator object.
func indicatorPattern(indicators []ai.Indicator) string {
	var patterns []string
	for _, ioc := range indicators {
		switch ioc.Type {
		case "ip":
			patterns = append(patterns, fmt.Sprintf("[ipv4-addr:value = '%s']", ioc.Value))
		case "domain":
			patterns = append(patterns, fmt.Sprintf("[domain-name:value = '%s']", ioc.Value))
		case "hash":
			switch len(ioc.Value) {
			case 32:
				patterns = append(patterns, fmt.Sprintf("[file:hashes.MD5 = '%s']", ioc.Value))
			case 40:
				patterns = append(patterns, fmt.Sprintf("[file:hashes.SHA-1 = '%s']", ioc.Value))
			case 64:
				patterns = append(patterns, fmt.Sprintf("[file:hashes.SHA-256 = '%s']", ioc.Value))
			}
		case "file_path":
			patterns = append(patterns, fmt.Sprintf("[file:name = '%s']", ioc.Value))
		}
	}
	if len(patterns) == 0 {
		return "[ipv4-addr:value = '0.0.0.0']"
	}
	return strings.Join(patterns, " OR ")
}

func nowSTIX() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}
