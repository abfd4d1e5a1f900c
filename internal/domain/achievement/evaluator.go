package achievement

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATOR
// ══════════════════════════════════════════════════════════════════════════════

// Evaluator проверяет каталог достижений против статистики пользователя.
// Чистая логика: запись разблокировок выполняет координатор, используя
// уникальность пары (userID, achievementID) как защиту от гонок.
type Evaluator struct{}

// NewEvaluator создаёт оценщик достижений.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate возвращает достижения, критерии которых выполнены и которые
// ещё не разблокированы пользователем. Неактивные пропускаются.
func (e *Evaluator) Evaluate(catalog []*Achievement, unlocked map[string]bool, stats UserStats) []*Achievement {
	var matched []*Achievement
	for _, a := range catalog {
		if !a.Active || unlocked[a.ID] {
			continue
		}
		if a.IsSatisfiedBy(stats) {
			matched = append(matched, a)
		}
	}
	return matched
}
