package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Константы валидации
const (
	MaxTaskDescriptionLength = 5000
	MaxBidMessageLength      = 2000
	MaxFeedbackLength        = 5000
	MinDisputeReasonLength   = 3
	MaxDisputeReasonLength   = 2000
	MaxExternalRefLength     = 255
)

// Идентификаторы провайдера вида pi_3Nx..., ch_..., cs_test_...
var externalRefRegex = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s не может быть пустым", fieldName)
	}
	return nil
}

// ValidateTaskDescription описание задачи необязательно, но ограничено по длине.
func ValidateTaskDescription(description string) error {
	return ValidateLength("описание задачи", strings.TrimSpace(description), 0, MaxTaskDescriptionLength)
}

// ValidateBidMessage проверяет сопроводительное сообщение ставки.
func ValidateBidMessage(message *string) error {
	if message == nil {
		return nil
	}
	return ValidateLength("сообщение ставки", strings.TrimSpace(*message), 0, MaxBidMessageLength)
}

// ValidateFeedback проверяет отзыв коуча при завершении задачи.
func ValidateFeedback(feedback *string) error {
	if feedback == nil {
		return nil
	}
	return ValidateLength("отзыв", strings.TrimSpace(*feedback), 0, MaxFeedbackLength)
}

// ValidateDisputeReason проверяет причину спора.
func ValidateDisputeReason(reason string) error {
	reason = strings.TrimSpace(reason)
	if err := ValidateNonEmpty("причина спора", reason); err != nil {
		return err
	}
	return ValidateLength("причина спора", reason, MinDisputeReasonLength, MaxDisputeReasonLength)
}

// ValidateExternalRef проверяет ссылку на платёж у провайдера.
func ValidateExternalRef(ref string) error {
	ref = strings.TrimSpace(ref)
	if err := ValidateNonEmpty("ссылка на платёж", ref); err != nil {
		return err
	}
	if err := ValidateLength("ссылка на платёж", ref, 0, MaxExternalRefLength); err != nil {
		return err
	}
	if !externalRefRegex.MatchString(ref) {
		return fmt.Errorf("ссылка на платёж содержит недопустимые символы")
	}
	return nil
}
