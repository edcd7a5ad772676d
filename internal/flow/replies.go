package flow

import "fmt"

// DefaultContactName stands in when neither the contact record nor the
// webhook profile carries a name.
const DefaultContactName = "Cliente"

// Reply texts sent by the conversation flow. The copy is the production
// pt-BR material used by the outreach team; only the contact name and the
// term URL vary.

func escalationReply() string {
	return "Certo! Um de nossos especialistas entrará em contato em breve. Obrigado!"
}

func termInstructionsReply(name, termURL string) string {
	return fmt.Sprintf("Excelente, %s! 🙌\n\n"+
		"Para darmos andamento de forma organizada e transparente, estou enviando em anexo o Termo de Representação.\n\n"+
		"Esse termo autoriza a Winston Serviços Corporativos a representar o(a) Sr.(a) na busca de propostas para o seu precatório.\n\n"+
		"📌 *Importante:*\n"+
		"• O documento não obriga a venda imediata;\n"+
		"• Garante apenas que a Winston poderá negociar em seu nome, protegendo sua oportunidade;\n"+
		"• Prevê uma remuneração de 6%% para a Winston, paga somente em caso de efetiva venda.\n\n"+
		"📄 *Acesse o termo aqui:* %s\n\n"+
		"Após o preenchimento, envie a palavra *preenchido* para prosseguirmos.", name, termURL)
}

func futureOfferReply(name string) string {
	return fmt.Sprintf("Entendido, %s!\n\n"+
		"Mesmo assim, gostaríamos de manter você informado(a) sobre oportunidades futuras que podem oferecer condições ainda melhores.\n\n"+
		"Aceita que a Winston envie propostas futuras, caso surjam oportunidades vantajosas?\n\n"+
		"Responda com *SIM* ou *NÃO*.", name)
}

func clarifyReply(name string) string {
	return fmt.Sprintf("Olá %s, não entendi sua resposta. Por favor, responda com 'SIM' para prosseguir ou 'NÃO' para encerrar.", name)
}

func futureOfferConfirmReply(name string) string {
	return fmt.Sprintf("Confirmado, %s! Manteremos seu contato para futuras oportunidades.", name)
}

func farewellReply(name string) string {
	return fmt.Sprintf("Entendido, %s.\n\n"+
		"Respeitamos sua decisão. Caso mude de ideia, estaremos à disposição.\n\n"+
		"Obrigado pela atenção!\n\n"+
		"Winston Serviços Corporativos", name)
}

func postTermReply(name string) string {
	return fmt.Sprintf("Agradecemos a confiança, %s! 🙏\n\n"+
		"A partir de agora, sua oportunidade será apresentada a bancos, fundos e investidores da nossa base qualificada.\n\n"+
		"Assim que tivermos uma boa proposta concreta, entraremos em contato imediatamente para compartilhar os detalhes.\n\n"+
		"Seguiremos juntos para viabilizar a melhor negociação possível.\n\n"+
		"Atenciosamente, Winston Serviços Corporativos.", name)
}

func termReminderReply() string {
	return "Ainda estamos aguardando o preenchimento do termo. Assim que o fizer, por favor, envie a palavra *preenchido*."
}

func stillWorkingReply(name string) string {
	return fmt.Sprintf("Que ótimo, %s! Seguimos em busca da melhor proposta para o seu precatório e entraremos em contato assim que houver novidades.\n\n"+
		"Atenciosamente, Winston Serviços Corporativos.", name)
}

// FollowUpReminder is the message the follow-up poller sends to contacts
// whose term confirmation has gone quiet.
func FollowUpReminder(name string) string {
	if name == "" {
		name = DefaultContactName
	}
	return fmt.Sprintf("Olá, %s! Passando para saber se ainda temos o seu interesse na venda do precatório. Seguimos com a negociação?\n\n"+
		"Responda com *SIM* ou *NÃO*.", name)
}
