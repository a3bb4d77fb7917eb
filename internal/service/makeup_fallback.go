package service

import "github.com/noah-isme/edu-makeup-api/internal/models"

// ResolveMode picks the option population for the target choices. A credit starts in guided
// mode while suggestions are pending; a settled empty result falls back to manual.
func ResolveMode(creditID string, settled bool, suggestionCount int) models.MakeupMode {
	switch {
	case creditID == "":
		return models.MakeupModeNone
	case !settled:
		return models.MakeupModeGuided
	case suggestionCount == 0:
		return models.MakeupModeManual
	default:
		return models.MakeupModeGuided
	}
}

// guidedClasses lists the distinct classes of the suggestions in first-seen order.
func guidedClasses(suggestions []models.MakeupSessionOption) []models.MakeupClassOption {
	classes := make([]models.MakeupClassOption, 0, len(suggestions))
	seen := make(map[string]struct{}, len(suggestions))
	for _, s := range suggestions {
		if s.ClassID == "" {
			continue
		}
		if _, ok := seen[s.ClassID]; ok {
			continue
		}
		seen[s.ClassID] = struct{}{}
		classes = append(classes, models.MakeupClassOption{ID: s.ClassID, Code: s.ClassCode, Name: s.ClassName})
	}
	return classes
}

func sessionsOfClass(options []models.MakeupSessionOption, classID string) []models.MakeupSessionOption {
	if classID == "" {
		return nil
	}
	result := make([]models.MakeupSessionOption, 0, len(options))
	for _, opt := range options {
		if opt.ClassID == classID {
			result = append(result, opt)
		}
	}
	return result
}
