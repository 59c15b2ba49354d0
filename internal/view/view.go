// Package view holds the front-end's templ components: full pages wrapped in
// the shared layout, and the fragments patched in over SSE.
package view

import (
	"time"

	"github.com/msomdec/agun-web/internal/domain"
)

// Nav is the navigation bar state shared by every page.
type Nav struct {
	User *domain.User
}

func GenderLabel(g domain.Gender) string {
	switch g {
	case domain.GenderMale:
		return "Homme"
	case domain.GenderFemale:
		return "Femme"
	case domain.GenderOther:
		return "Autre"
	}
	return string(g)
}

func StatusLabel(s domain.Status) string {
	switch s {
	case domain.StatusStudent:
		return "Étudiant"
	case domain.StatusEmployed:
		return "Salarié"
	case domain.StatusEntrepreneur:
		return "Entrepreneur"
	}
	return string(s)
}

// RoleLabel shows "Utilisateur" when the backend sends no role.
func RoleLabel(role string) string {
	switch role {
	case "", "user":
		return "Utilisateur"
	}
	return role
}

type Feature struct {
	Title       string
	Description string
}

var features = []Feature{
	{"Groupes externes", "Rejoins des groupes WhatsApp & Telegram vérifiés par la communauté"},
	{"Communautés", "Crée et anime tes propres espaces de discussion"},
	{"Services", "Trouve des pros de confiance : coiffure, transport, formation..."},
	{"Événements", "Découvre les rencontres et activités près de chez toi"},
	{"Forum", "Pose tes questions et partage ton expérience"},
	{"Entraide", "Propose ou demande de l'aide : déménagement, papiers, traduction..."},
	{"Annuaire", "Connecte-toi avec des pros et ambassadeurs de la diaspora"},
	{"Messages", "Échange en privé avec les membres de la communauté"},
	{"Carte interactive", "Visualise services, événements et groupes sur la carte"},
}

var painPoints = []Feature{
	{"L'isolement", "Tu arrives dans un pays où tu ne connais personne. Pas de réseau, pas de repères."},
	{"Les arnaques", "Faux logements, faux services, groupes WhatsApp douteux. Difficile de faire confiance."},
	{"La perte de temps", "Des heures sur Facebook à chercher une info fiable. Tout est éparpillé, rien n'est vérifié."},
}

// LoginForm is the login page state. The password is never rendered back.
type LoginForm struct {
	Email  string
	Next   string
	Error  string
	Notice string
}

func today(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// datastar expressions with quotes go through Go so templ escapes them.
const (
	passwordType   = "$_showPassword ? 'text' : 'password'"
	toggleLabel    = "$_showPassword ? 'Masquer le mot de passe' : 'Afficher le mot de passe'"
	submitAction   = "@post('/register/submit', {contentType: 'form'})"
	refreshProfile = "@get('/dashboard/profile')"
)
