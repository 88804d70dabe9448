package bot

import (
	"strings"

	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys.
const (
	msgWelcome          = "welcome"
	msgWelcomeBack      = "welcome_back"
	msgAwaitingCaption  = "awaiting_caption"
	msgConfigure        = "configure"
	msgSelectRatio      = "select_ratio"
	msgCancelled        = "cancelled"
	msgWizardBase       = "wizard_base"
	msgWizardReference  = "wizard_reference"
	msgWizardDesc       = "wizard_description"
	msgEditInstruction  = "edit_instruction"
	msgWrongInput       = "wrong_input"
	msgNotAvailable     = "not_available"
	msgTooManyImages    = "too_many_images"
	msgDispatch         = "dispatch"
	msgAdvisory         = "advisory"
	msgInsufficient     = "insufficient"
	msgRejected         = "rejected"
	msgTransient        = "transient"
	msgStaleRefund      = "stale_refund"
	msgRejectedPending  = "rejected_pending"
	msgTransientPending = "transient_pending"
	msgBalanceCredited  = "balance_credited"
	msgBalanceDebited   = "balance_debited"
	msgSupport          = "support"
	msgBalance          = "balance"
	msgBonusGranted     = "bonus_granted"
	msgBonusClaimed     = "bonus_claimed"
	msgPurchaseCreated  = "purchase_created"
	msgPurchaseUnknown  = "purchase_unknown"
	msgRecordNotFound   = "record_not_found"
	msgInternal         = "internal_error"
	msgCredits          = "credits"
	msgTierStandard     = "tier_standard"
	msgTierPro          = "tier_pro"
	msgSuccess          = "success"
)

var (
	supported = []language.Tag{language.Russian, language.English}
	matcher   = language.NewMatcher(supported)
	messages  = newCatalog()
)

func newCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.Russian))
	set := func(tag language.Tag, key, msg string) {
		_ = b.SetString(tag, key, msg)
	}

	_ = b.Set(language.Russian, msgCredits, plural.Selectf(1, "%d",
		plural.One, "%d банан",
		plural.Few, "%d банана",
		plural.Other, "%d бананов"))
	_ = b.Set(language.English, msgCredits, plural.Selectf(1, "%d",
		plural.One, "%d banana",
		plural.Other, "%d bananas"))

	ru := map[string]string{
		msgWelcome:          "Привет! Тебе начислено %s. Напиши, что создать, или пришли от 1 до 4 фото.",
		msgWelcomeBack:      "С возвращением! Твой баланс: %s.",
		msgAwaitingCaption:  "Получено фото: %d. Теперь напиши, что с ними сделать.",
		msgConfigure:        "Промпт: %s\nФото: %d\nМодель: %s\nФормат: %s\nКачество: %s\nСтоимость: %s",
		msgSelectRatio:      "Выбери формат: %s",
		msgCancelled:        "Отменено.",
		msgWizardBase:       "Шаг 1 из 3: пришли основное фото.",
		msgWizardReference:  "Шаг 2 из 3: пришли фото с объектом для замены.",
		msgWizardDesc:       "Шаг 3 из 3: напиши, какой объект заменить.",
		msgEditInstruction:  "Напиши, что изменить на этом изображении.",
		msgWrongInput:       "На этом шаге нужно другое: %s",
		msgNotAvailable:     "Это действие сейчас недоступно.",
		msgTooManyImages:    "Можно прислать не больше %d фото за раз, а пришло %d.",
		msgDispatch:         "Генерирую… Списано %s.",
		msgAdvisory:         "Совет: стандартная модель хуже объединяет несколько фото. Для лучшего результата выбери Pro.",
		msgInsufficient:     "Недостаточно бананов: нужно %s, на балансе %s. Пополни баланс, чтобы продолжить.",
		msgRejected:         "Не удалось сгенерировать изображение по этому запросу. Бананы возвращены (%s). Попробуй изменить запрос или фото.",
		msgTransient:        "Ошибка генерации: %s. Бананы возвращены (%s). Можно повторить.",
		msgStaleRefund:      "Генерация не завершилась вовремя. Возвращено %s, баланс: %s.",
		msgRejectedPending:  "Не удалось сгенерировать изображение по этому запросу. Бананы вернутся автоматически в течение нескольких минут.",
		msgTransientPending: "Ошибка генерации: %s. Бананы вернутся автоматически в течение нескольких минут.",
		msgBalanceCredited:  "Администратор начислил тебе %s. Баланс: %s.",
		msgBalanceDebited:   "Администратор списал %s. Баланс: %s.",
		msgSupport:          "Сообщение от поддержки:\n%s",
		msgBalance:          "Баланс: %s\nГенераций: %d\nПотрачено: %s ₽",
		msgBonusGranted:     "Бонус начислен! Баланс: %s.",
		msgBonusClaimed:     "Этот бонус уже получен.",
		msgPurchaseCreated:  "Заказ %s: %s за %s ₽.",
		msgPurchaseUnknown:  "Такого пакета нет.",
		msgRecordNotFound:   "Генерация не найдена.",
		msgInternal:         "Что-то пошло не так. Попробуй ещё раз.",
		msgTierStandard:     "Стандарт",
		msgTierPro:          "Pro",
		msgSuccess:          "Готово! Баланс: %s.",
	}
	en := map[string]string{
		msgWelcome:          "Hi! You received %s. Describe what to create or send 1 to 4 photos.",
		msgWelcomeBack:      "Welcome back! Your balance: %s.",
		msgAwaitingCaption:  "Received %d photo(s). Now tell me what to do with them.",
		msgConfigure:        "Prompt: %s\nPhotos: %d\nModel: %s\nRatio: %s\nQuality: %s\nCost: %s",
		msgSelectRatio:      "Choose a ratio: %s",
		msgCancelled:        "Cancelled.",
		msgWizardBase:       "Step 1 of 3: send the base photo.",
		msgWizardReference:  "Step 2 of 3: send the photo with the replacement object.",
		msgWizardDesc:       "Step 3 of 3: name the object to replace.",
		msgEditInstruction:  "Tell me what to change in this image.",
		msgWrongInput:       "This step expects something else: %s",
		msgNotAvailable:     "This action is not available right now.",
		msgTooManyImages:    "At most %d photos per request, got %d.",
		msgDispatch:         "Generating… Charged %s.",
		msgAdvisory:         "Tip: the standard model blends several photos poorly. Choose Pro for better results.",
		msgInsufficient:     "Not enough bananas: %s needed, %s available. Top up to continue.",
		msgRejected:         "The provider could not generate this request. Refunded %s. Try a different prompt or photo.",
		msgTransient:        "Generation failed: %s. Refunded %s. You can try again.",
		msgStaleRefund:      "A generation did not finish in time. Refunded %s, balance: %s.",
		msgRejectedPending:  "The provider could not generate this request. Your bananas will be returned automatically within a few minutes.",
		msgTransientPending: "Generation failed: %s. Your bananas will be returned automatically within a few minutes.",
		msgBalanceCredited:  "An administrator credited %s. Balance: %s.",
		msgBalanceDebited:   "An administrator debited %s. Balance: %s.",
		msgSupport:          "Message from support:\n%s",
		msgBalance:          "Balance: %s\nGenerations: %d\nSpent: %s ₽",
		msgBonusGranted:     "Bonus granted! Balance: %s.",
		msgBonusClaimed:     "This bonus was already claimed.",
		msgPurchaseCreated:  "Order %s: %s for %s ₽.",
		msgPurchaseUnknown:  "No such package.",
		msgRecordNotFound:   "Generation not found.",
		msgInternal:         "Something went wrong. Please try again.",
		msgTierStandard:     "Standard",
		msgTierPro:          "Pro",
		msgSuccess:          "Done! Balance: %s.",
	}
	for k, v := range ru {
		set(language.Russian, k, v)
	}
	for k, v := range en {
		set(language.English, k, v)
	}
	return b
}

// printer returns a message printer for a chat language code such as "en"
// or "ru-RU". Unknown languages get Russian.
func printer(lang string) *message.Printer {
	tag, _ := language.MatchStrings(matcher, strings.TrimSpace(lang))
	base, _ := tag.Base()
	return message.NewPrinter(language.Make(base.String()), message.Catalog(messages))
}

func credits(p *message.Printer, n int64) string {
	return p.Sprintf(msgCredits, n)
}
