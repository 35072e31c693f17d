package mqtt

func TicketTopic(number string) string {
	return "station/tickets/" + number
}

func PileTopic(pileID string) string {
	return "station/piles/" + pileID
}

func SessionTopic(number string) string {
	return "station/sessions/" + number
}
